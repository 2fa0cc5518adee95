package export

import (
	"context"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfRenderTimeout = 30 * time.Second

// chromiumBinaries is the lookup order for a usable browser binary.
var chromiumBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

func findChromium() (string, error) {
	for _, name := range chromiumBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// pdfJob carries the rendered page plus the metadata stamped into the
// printed header and footer.
type pdfJob struct {
	HTML      string
	Title     string
	Workspace string
	UpdatedAt time.Time
}

// printHeaderHTML is the Chrome print header: workspace and page title.
// Chrome requires inline styles here; external CSS never loads in print
// header templates.
func printHeaderHTML(job pdfJob) string {
	return fmt.Sprintf(
		`<div style="font-size:8px; width:100%%; padding:0 24px; color:#9b9a97; display:flex; justify-content:space-between;">`+
			`<span>%s</span><span>%s</span></div>`,
		template.HTMLEscapeString(job.Workspace),
		template.HTMLEscapeString(job.Title),
	)
}

// printFooterHTML is the Chrome print footer: last-edited date and page
// numbers. pageNumber/totalPages are class names Chrome substitutes.
func printFooterHTML(job pdfJob) string {
	return fmt.Sprintf(
		`<div style="font-size:8px; width:100%%; padding:0 24px; color:#9b9a97; display:flex; justify-content:space-between;">`+
			`<span>Last edited %s</span>`+
			`<span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`,
		job.UpdatedAt.Format("Jan 2, 2006"),
	)
}

// exportPDF prints the rendered page with headless Chrome. A4 paper with
// the page title and workspace in the running header.
func exportPDF(job pdfJob) (*Result, error) {
	browser, err := findChromium()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pdfRenderTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(job.HTML)

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithMarginTop(0.8).
				WithMarginBottom(0.8).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(printHeaderHTML(job)).
				WithFooterTemplate(printFooterHTML(job)).
				WithPreferCSSPageSize(false).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: sanitizeFilename(job.Title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

const upperhex = "0123456789ABCDEF"

// percentEncodeForDataURL escapes HTML for embedding in a data URL.
// url.QueryEscape emits + for spaces, which data URLs do not understand,
// so spaces go through the %XX path like every other reserved byte.
func percentEncodeForDataURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		}
	}
	return b.String()
}

// sanitizeFilename reduces a page title to a safe download name. Spaces
// become hyphens, anything outside [A-Za-z0-9-_] is dropped, and the
// result is capped at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		return "page"
	}
	return name
}
