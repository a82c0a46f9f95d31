package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
)

type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateScraping    State = "scraping"
	StateDone        State = "done"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Request is one search to run against one portal.
type Request struct {
	Portal   string `json:"portal"`
	Query    string `json:"query"`
	Location string `json:"location"`
}

// Report is the outcome of a run. Results are in completion order.
type Report struct {
	ID          uuid.UUID            `json:"id"`
	Portal      string               `json:"portal"`
	Query       string               `json:"query"`
	Location    string               `json:"location"`
	State       State                `json:"state"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	Discovered  int                  `json:"discovered"`
	Skipped     int                  `json:"skipped"`
	Succeeded   int                  `json:"succeeded"`
	Partial     int                  `json:"partial"`
	Failed      int                  `json:"failed"`
	BotDetected int                  `json:"bot_detected"`
	Error       string               `json:"error,omitempty"`
	Results     []model.ScrapeResult `json:"results"`
}

// Run tracks a run in progress. Its report may be read while the run
// executes.
type Run struct {
	mu     sync.Mutex
	report Report
	done   chan struct{}
	err    error
}

func newRun(req Request) *Run {
	return &Run{
		report: Report{
			ID:        uuid.New(),
			Portal:    req.Portal,
			Query:     req.Query,
			Location:  req.Location,
			State:     StateIdle,
			StartedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
}

func (r *Run) ID() uuid.UUID { return r.report.ID }

// Snapshot returns a copy of the report as it stands.
func (r *Run) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.report
	rep.Results = append([]model.ScrapeResult(nil), r.report.Results...)
	return rep
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its final report. The error
// is non-nil when the run failed or was cancelled.
func (r *Run) Wait() (Report, error) {
	<-r.done
	return r.Snapshot(), r.err
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.report.State = s
	r.mu.Unlock()
}

func (r *Run) setDiscovered(n int) {
	r.mu.Lock()
	r.report.Discovered = n
	r.mu.Unlock()
}

func (r *Run) skip() {
	r.mu.Lock()
	r.report.Skipped++
	r.mu.Unlock()
}

func (r *Run) add(res model.ScrapeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Results = append(r.report.Results, res)
	switch res.Status {
	case model.StatusSuccess:
		r.report.Succeeded++
	case model.StatusPartial:
		r.report.Partial++
	default:
		r.report.Failed++
		if res.Failure != nil && (res.Failure.Kind == string(failure.KindBotDetected) || res.Failure.Cause == string(failure.KindBotDetected)) {
			r.report.BotDetected++
		}
	}
}

func (r *Run) finish(state State, err error) {
	r.mu.Lock()
	now := time.Now().UTC()
	r.report.State = state
	r.report.FinishedAt = &now
	if err != nil {
		r.report.Error = err.Error()
	}
	r.err = err
	r.mu.Unlock()
	close(r.done)
}
