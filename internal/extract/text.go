package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var spaceRe = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
var blankLinesRe = regexp.MustCompile(`\n\s*\n+`)

// CleanText normalizes to NFC, collapses runs of horizontal whitespace and
// keeps at most one blank line between paragraphs.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = spaceRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// HTMLText flattens an HTML fragment to text. Plain text passes through
// with entities decoded.
func HTMLText(s string) string {
	if !strings.Contains(s, "<") {
		return html.UnescapeString(s)
	}
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return html.UnescapeString(s)
	}
	var sb strings.Builder
	writeText(&sb, root)
	return sb.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "section": true,
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n")
	}
}

var salaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$₹€£¥]\s*[\d,]+(?:\.\d{2})?\s*-\s*[$₹€£¥]\s*[\d,]+(?:\.\d{2})?`),
	regexp.MustCompile(`[\d,]+(?:\.\d{2})?\s*-\s*[\d,]+(?:\.\d{2})?\s*(?:per|/)\s*(?:month|year|hour)`),
}

// FindSalary returns the first salary-looking range in text.
func FindSalary(text string) string {
	for _, re := range salaryPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
