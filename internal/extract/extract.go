// Package extract turns a rendered job-detail page into a model.JobRecord by
// running an ordered chain of independent strategies.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
)

// Content is a snapshot of one detail page: the rendered DOM plus whatever
// client state the page exposed to script evaluation.
type Content struct {
	URL    string
	Portal string
	HTML   string
	State  json.RawMessage

	doc    *goquery.Document
	docErr error
	parsed bool
}

// Document parses HTML once and caches the result for later strategies.
func (c *Content) Document() (*goquery.Document, error) {
	if !c.parsed {
		c.parsed = true
		c.doc, c.docErr = goquery.NewDocumentFromReader(strings.NewReader(c.HTML))
	}
	return c.doc, c.docErr
}

type Status int

const (
	NotApplicable Status = iota
	Success
	PartialMatch
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialMatch:
		return "partial"
	}
	return "not_applicable"
}

// Outcome is the tagged result of one strategy attempt. Record and Missing
// are only meaningful for Success and PartialMatch.
type Outcome struct {
	Status   Status
	Record   model.JobRecord
	Missing  []string
	Strategy string
}

// Strategy parses a page into an Outcome. It returns NotApplicable when the
// page does not have the shape it understands.
type Strategy interface {
	Name() string
	Attempt(c *Content) Outcome
}

// Chain runs strategies in priority order and stops at the first one that
// applies.
type Chain []Strategy

func (ch Chain) Extract(c *Content) (Outcome, error) {
	tried := make([]string, 0, len(ch))
	for _, s := range ch {
		tried = append(tried, s.Name())
		out := s.Attempt(c)
		if out.Status == NotApplicable {
			continue
		}
		out.Strategy = s.Name()
		return out, nil
	}
	return Outcome{}, &failure.Error{
		Kind:       failure.KindExtractionFailed,
		URL:        c.URL,
		Permanent:  true,
		Strategies: tried,
	}
}

func (ch Chain) Names() []string {
	names := make([]string, len(ch))
	for i, s := range ch {
		names[i] = s.Name()
	}
	return names
}

// finish stamps the identity fields every record carries, cleans text and
// classifies the record as Success or PartialMatch.
func finish(c *Content, rec model.JobRecord) Outcome {
	rec.URL = c.URL
	rec.SourcePortal = c.Portal
	rec.Title = CleanText(rec.Title)
	rec.Company = CleanText(rec.Company)
	rec.Location = CleanText(rec.Location)
	rec.Description = CleanText(rec.Description)
	rec.Salary = CleanText(rec.Salary)
	rec.JobID = strings.TrimSpace(rec.JobID)

	missing := rec.MissingFields()
	if len(missing) > 0 {
		return Outcome{Status: PartialMatch, Record: rec, Missing: missing}
	}
	return Outcome{Status: Success, Record: rec}
}
