package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate *template.Template

func init() {
	// Custom template functions
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/page.html")
	if err != nil {
		// Fallback to built-in template if file not found
		pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for page template rendering
type TemplateData struct {
	Title         string
	Icon          string
	ContentHTML   template.HTML
	WorkspaceName string
	UpdatedAt     time.Time
	Comments      []TemplateComment
}

// TemplateComment holds comment data for template
type TemplateComment struct {
	Author   string
	Body     string
	Resolved bool
}

// RenderPageHTML renders the page template with provided data
func RenderPageHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{if .Icon}}{{.Icon}} {{end}}{{.Title}}</h1>
  <div class="meta">{{.WorkspaceName}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  <div>{{.ContentHTML | safeHTML}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="comment"><strong>{{.Author}}</strong> {{.Body}}</div>{{end}}
  {{end}}
</body>
</html>`
