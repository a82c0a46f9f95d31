package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

// Selectors lists CSS selectors per field, tried in order.
type Selectors struct {
	Title       []string
	Company     []string
	Location    []string
	Description []string
	Salary      []string
}

// Selector scrapes the rendered DOM. Title and company are anchors: without
// both the page is not treated as a job page at all.
type Selector struct {
	Fields Selectors
}

func (Selector) Name() string { return "selector" }

func (s Selector) Attempt(c *Content) Outcome {
	doc, err := c.Document()
	if err != nil {
		return Outcome{}
	}
	rec := model.JobRecord{
		Title:   firstText(doc, s.Fields.Title),
		Company: firstText(doc, s.Fields.Company),
	}
	if rec.Title == "" || rec.Company == "" {
		return Outcome{}
	}
	rec.Location = firstText(doc, s.Fields.Location)
	rec.Description = firstBlockText(doc, s.Fields.Description)
	rec.Salary = firstText(doc, s.Fields.Salary)
	if rec.Salary == "" {
		rec.Salary = FindSalary(doc.Find("body").Text())
	}
	return finish(c, rec)
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstBlockText keeps paragraph breaks, which goquery's Text drops.
func firstBlockText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		markup, err := goquery.OuterHtml(node)
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(HTMLText(markup)); text != "" {
			return text
		}
	}
	return ""
}
