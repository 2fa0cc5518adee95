package export

import (
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"
)

func block(typ string, content string) BlockInfo {
	return BlockInfo{Type: typ, Content: json.RawMessage(content)}
}

func TestBlocksToHTML(t *testing.T) {
	tests := []struct {
		name     string
		blocks   []BlockInfo
		expected string
	}{
		{
			name:     "no blocks",
			blocks:   nil,
			expected: "",
		},
		{
			name:     "text paragraph",
			blocks:   []BlockInfo{block("text", `{"text":"Hello world"}`)},
			expected: "<p>Hello world</p>",
		},
		{
			name:     "heading shifts below page title",
			blocks:   []BlockInfo{block("heading", `{"text":"Section","level":2}`)},
			expected: "<h3>Section</h3>",
		},
		{
			name: "consecutive list items share one list",
			blocks: []BlockInfo{
				block("list", `{"text":"Item 1"}`),
				block("list", `{"text":"Item 2"}`),
			},
			expected: "<ul>\n<li>Item 1</li>\n<li>Item 2</li>\n</ul>",
		},
		{
			name:     "ordered list",
			blocks:   []BlockInfo{block("list", `{"text":"First","ordered":true}`)},
			expected: "<ol>",
		},
		{
			name:     "checked todo",
			blocks:   []BlockInfo{block("todo", `{"text":"Ship it","checked":true}`)},
			expected: "&#9745; Ship it",
		},
		{
			name:     "code block",
			blocks:   []BlockInfo{block("code", `{"text":"func main() {}","language":"go"}`)},
			expected: "<pre><code class=\"language-go\">func main() {}</code></pre>",
		},
		{
			name:     "divider",
			blocks:   []BlockInfo{block("divider", `{}`)},
			expected: "<hr>",
		},
		{
			name:     "text is escaped",
			blocks:   []BlockInfo{block("text", `{"text":"<script>alert(1)</script>"}`)},
			expected: "&lt;script&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strings.TrimSpace(BlocksToHTML(tt.blocks))
			expected := strings.TrimSpace(tt.expected)
			if !strings.Contains(result, expected) {
				t.Errorf("BlocksToHTML() = %v, want %v", result, expected)
			}
		})
	}
}

func TestBlocksToHTMLClosesListBeforeOtherBlocks(t *testing.T) {
	blocks := []BlockInfo{
		block("list", `{"text":"Item"}`),
		block("text", `{"text":"After the list"}`),
	}
	result := BlocksToHTML(blocks)
	closeIdx := strings.Index(result, "</ul>")
	paraIdx := strings.Index(result, "<p>After the list</p>")
	if closeIdx == -1 || paraIdx == -1 || closeIdx > paraIdx {
		t.Fatalf("list not closed before following paragraph:\n%s", result)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Page v1.2", "My-Page-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "page"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPrintHeaderFooterTemplates(t *testing.T) {
	job := pdfJob{
		Title:     "Launch <Plan>",
		Workspace: "Product & Design",
		UpdatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	header := printHeaderHTML(job)
	if !strings.Contains(header, "Product &amp; Design") {
		t.Errorf("header missing escaped workspace name: %s", header)
	}
	if !strings.Contains(header, "Launch &lt;Plan&gt;") {
		t.Errorf("header missing escaped page title: %s", header)
	}
	if strings.Contains(header, "<Plan>") {
		t.Error("header leaked unescaped title markup")
	}

	footer := printFooterHTML(job)
	if !strings.Contains(footer, "Last edited Mar 14, 2026") {
		t.Errorf("footer missing edit date: %s", footer)
	}
	// Chrome substitutes these class names with the running page counts.
	if !strings.Contains(footer, `class="pageNumber"`) || !strings.Contains(footer, `class="totalPages"`) {
		t.Errorf("footer missing page counters: %s", footer)
	}
}

func TestFindChromiumMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, err := findChromium(); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Errorf("findChromium() error = %v, want ErrPDFDependencyMissing", err)
	}
}

func TestRenderPageHTML(t *testing.T) {
	data := TemplateData{
		Title:         "Launch Plan",
		Icon:          "🚀",
		ContentHTML:   template.HTML("<p>This is the content.</p>"),
		WorkspaceName: "Product",
		UpdatedAt:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Comments: []TemplateComment{
			{Author: "Avery", Body: "Looks ready to me", Resolved: true},
		},
	}

	html, err := RenderPageHTML(data)
	if err != nil {
		t.Fatalf("RenderPageHTML() error = %v", err)
	}

	if !strings.Contains(html, "Launch Plan") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "Product") {
		t.Error("HTML missing workspace name")
	}
	if !strings.Contains(html, "Looks ready to me") {
		t.Error("HTML missing comments section")
	}

	// Rendered block HTML must pass through unescaped.
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped - should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("HTML content should contain unescaped <p> tags")
	}
}
