package model

import "time"

// JobRecord is the normalized result of scraping one job-detail page.
// URL and SourcePortal are always set; every other field may be empty.
type JobRecord struct {
	URL          string     `json:"url"`
	JobID        string     `json:"job_id,omitempty"`
	Title        string     `json:"title,omitempty"`
	Company      string     `json:"company,omitempty"`
	Location     string     `json:"location,omitempty"`
	Description  string     `json:"description,omitempty"`
	Salary       string     `json:"salary,omitempty"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	SourcePortal string     `json:"source_portal"`
}

// Field names used when reporting which parts of a record are missing.
const (
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldLocation    = "location"
	FieldDescription = "description"
)

// RequiredFields lists the fields whose absence makes an extraction partial.
var RequiredFields = []string{FieldTitle, FieldCompany, FieldLocation, FieldDescription}

// MissingFields reports which of RequiredFields are empty on r.
func (r JobRecord) MissingFields() []string {
	var missing []string
	for _, f := range RequiredFields {
		if r.field(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func (r JobRecord) field(name string) string {
	switch name {
	case FieldTitle:
		return r.Title
	case FieldCompany:
		return r.Company
	case FieldLocation:
		return r.Location
	case FieldDescription:
		return r.Description
	}
	return ""
}

// DiscoveryResult is the ordered, deduplicated set of detail URLs found for
// one (query, location) search. Order reflects search ranking.
type DiscoveryResult struct {
	Portal   string   `json:"portal"`
	Query    string   `json:"query"`
	Location string   `json:"location"`
	URLs     []string `json:"urls"`
}

// Add appends u unless it is empty or already present. It reports whether
// the URL was new.
func (d *DiscoveryResult) Add(u string, seen map[string]struct{}) bool {
	if u == "" {
		return false
	}
	if _, ok := seen[u]; ok {
		return false
	}
	seen[u] = struct{}{}
	d.URLs = append(d.URLs, u)
	return true
}

// ScrapeTask binds one URL to one adapter for the lifetime of a scrape.
// Attempts is written by the retrier.
type ScrapeTask struct {
	URL      string
	Portal   string
	Attempts int
}
