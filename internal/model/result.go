package model

// Status of a single scrape task once it reached a terminal state.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ScrapeFailure describes why a task produced no record.
type ScrapeFailure struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Cause    string `json:"cause,omitempty"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// ScrapeResult is what the runner hands to a sink for every task.
type ScrapeResult struct {
	Portal   string         `json:"portal"`
	URL      string         `json:"url"`
	Status   Status         `json:"status"`
	Strategy string         `json:"strategy,omitempty"`
	Missing  []string       `json:"missing,omitempty"`
	Record   *JobRecord     `json:"record,omitempty"`
	Failure  *ScrapeFailure `json:"failure,omitempty"`
	Attempts int            `json:"attempts"`
}
