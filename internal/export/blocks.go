package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// blockContent is the subset of block payload fields the renderer uses.
type blockContent struct {
	Text     string     `json:"text"`
	Level    int        `json:"level"`
	Checked  bool       `json:"checked"`
	Language string     `json:"language"`
	URL      string     `json:"url"`
	Caption  string     `json:"caption"`
	Ordered  bool       `json:"ordered"`
	Rows     [][]string `json:"rows"`
}

// BlocksToHTML renders page blocks, already sorted by position, to HTML.
// Consecutive list blocks are grouped into a single ul or ol.
func BlocksToHTML(blocks []BlockInfo) string {
	var b strings.Builder
	var listTag string // "ul", "ol" or "" when not inside a list

	closeList := func() {
		if listTag != "" {
			fmt.Fprintf(&b, "</%s>\n", listTag)
			listTag = ""
		}
	}

	for _, block := range blocks {
		var content blockContent
		if len(block.Content) > 0 {
			_ = json.Unmarshal(block.Content, &content)
		}

		wantTag := ""
		if block.Type == "list" {
			wantTag = "ul"
			if content.Ordered {
				wantTag = "ol"
			}
		}
		if wantTag != listTag {
			closeList()
			if wantTag != "" {
				fmt.Fprintf(&b, "<%s>\n", wantTag)
				listTag = wantTag
			}
		}

		switch block.Type {
		case "heading":
			level := content.Level
			if level < 1 || level > 3 {
				level = 1
			}
			// Page title owns h1, headings start at h2.
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", level+1, html.EscapeString(content.Text), level+1)
		case "list":
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(content.Text))
		case "todo":
			mark := "&#9744;"
			if content.Checked {
				mark = "&#9745;"
			}
			fmt.Fprintf(&b, "<p class=\"todo\">%s %s</p>\n", mark, html.EscapeString(content.Text))
		case "toggle":
			fmt.Fprintf(&b, "<details><summary>%s</summary></details>\n", html.EscapeString(content.Text))
		case "code":
			fmt.Fprintf(&b, "<pre><code class=\"language-%s\">%s</code></pre>\n",
				html.EscapeString(content.Language), html.EscapeString(content.Text))
		case "divider":
			b.WriteString("<hr>\n")
		case "image":
			fmt.Fprintf(&b, "<figure><img src=%q alt=%q>", content.URL, content.Caption)
			if content.Caption != "" {
				fmt.Fprintf(&b, "<figcaption>%s</figcaption>", html.EscapeString(content.Caption))
			}
			b.WriteString("</figure>\n")
		case "embed":
			fmt.Fprintf(&b, "<p class=\"embed\"><a href=%q>%s</a></p>\n",
				content.URL, html.EscapeString(firstNonEmpty(content.Caption, content.URL)))
		case "table":
			b.WriteString("<table>\n")
			for _, row := range content.Rows {
				b.WriteString("<tr>")
				for _, cell := range row {
					fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(cell))
				}
				b.WriteString("</tr>\n")
			}
			b.WriteString("</table>\n")
		default:
			// text and anything unrecognized render as a paragraph
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(content.Text))
		}
	}
	closeList()
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
