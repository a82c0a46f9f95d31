package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

// JSONLD reads schema.org JobPosting blocks. It is the most reliable source
// when a page carries one.
type JSONLD struct{}

func (JSONLD) Name() string { return "jsonld" }

func (JSONLD) Attempt(c *Content) Outcome {
	doc, err := c.Document()
	if err != nil {
		return Outcome{}
	}
	var posting map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		postings := parseJobPostings(s.Text())
		if len(postings) == 0 {
			return true
		}
		posting = postings[0]
		return false
	})
	if posting == nil {
		return Outcome{}
	}
	return finish(c, recordFromPosting(posting))
}

func parseJobPostings(raw string) []map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	var out []map[string]any
	findJobPostings(payload, &out)
	return out
}

func findJobPostings(payload any, out *[]map[string]any) {
	switch t := payload.(type) {
	case map[string]any:
		if isJobPostingType(t["@type"]) {
			*out = append(*out, t)
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				findJobPostings(item, out)
			}
		}
	case []any:
		for _, item := range t {
			findJobPostings(item, out)
		}
	}
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func recordFromPosting(p map[string]any) model.JobRecord {
	rec := model.JobRecord{
		Title:       stringField(p["title"]),
		Company:     orgName(p["hiringOrganization"]),
		Location:    parseLocation(p["jobLocation"]),
		Description: HTMLText(stringField(p["description"])),
		Salary:      parseSalary(p["baseSalary"]),
		JobID:       identifier(p["identifier"]),
	}
	if rec.Location == "" && isRemote(p["jobLocationType"]) {
		rec.Location = "Remote"
	}
	if t := parseDate(p["datePosted"]); !t.IsZero() {
		rec.PostedAt = &t
	}
	return rec
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if val, ok := t["@value"]; ok {
			if str, ok2 := val.(string); ok2 {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func orgName(v any) string {
	if name := stringField(v); name != "" {
		return name
	}
	if org, ok := v.(map[string]any); ok {
		return stringField(org["name"])
	}
	return ""
}

func identifier(v any) string {
	if id := stringField(v); id != "" {
		return id
	}
	if m, ok := v.(map[string]any); ok {
		return stringField(m["value"])
	}
	return ""
}

func isRemote(v any) bool {
	return strings.EqualFold(stringField(v), "TELECOMMUTE")
}

func parseLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if loc := parseLocation(item); loc != "" {
				return loc
			}
		}
	case map[string]any:
		if addr, ok := t["address"].(map[string]any); ok {
			return joinParts(
				stringField(addr["addressLocality"]),
				stringField(addr["addressRegion"]),
				countryName(addr["addressCountry"]),
			)
		}
		if name := stringField(t["name"]); name != "" {
			return name
		}
	}
	return ""
}

func countryName(v any) string {
	if s := stringField(v); s != "" {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		return stringField(m["name"])
	}
	return ""
}

// parseSalary renders a MonetaryAmount as "USD 50000 - 80000 per YEAR".
func parseSalary(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return stringField(v)
	}
	currency := stringField(m["currency"])
	unit := ""
	var amount string
	switch val := m["value"].(type) {
	case map[string]any:
		if currency == "" {
			currency = stringField(val["currency"])
		}
		unit = stringField(val["unitText"])
		lo, hi := stringField(val["minValue"]), stringField(val["maxValue"])
		switch {
		case lo != "" && hi != "" && lo != hi:
			amount = lo + " - " + hi
		case lo != "":
			amount = lo
		case hi != "":
			amount = hi
		default:
			amount = stringField(val["value"])
		}
	default:
		amount = stringField(val)
	}
	if amount == "" {
		return ""
	}
	if unit == "" {
		unit = stringField(m["unitText"])
	}
	out := amount
	if currency != "" {
		out = fmt.Sprintf("%s %s", currency, amount)
	}
	if unit != "" {
		out += " per " + unit
	}
	return out
}

func parseDate(v any) time.Time {
	val := stringField(v)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinParts(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(p))
	}
	return strings.Join(out, ", ")
}
