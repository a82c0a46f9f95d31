package observability

import (
	"maps"
	"sync"
	"time"
)

// PortalStats are the counters kept per portal.
type PortalStats struct {
	PagesNavigated uint64  `json:"pages_navigated"`
	JobsDiscovered uint64  `json:"jobs_discovered"`
	BotDetections  uint64  `json:"bot_detections"`
	Runs           uint64  `json:"runs"`
	RunSecondsAvg  float64 `json:"run_seconds_avg"`

	runTime time.Duration
}

type StatsSnapshot struct {
	Portals           map[string]PortalStats `json:"portals"`
	RecordsByStatus   map[string]uint64      `json:"records_by_status"`
	RetriesBy         map[string]uint64      `json:"retries_by_component"`
	ErrorsTotal       uint64                 `json:"errors_total"`
	ErrorsByType      map[string]uint64      `json:"errors_by_type"`
	ErrorsByComponent map[string]uint64      `json:"errors_by_component"`
}

// Stats collects process-wide scrape counters. The zero value is not
// usable; call NewStats.
type Stats struct {
	mu                sync.Mutex
	portals           map[string]*PortalStats
	records           map[string]uint64
	retries           map[string]uint64
	errorsTotal       uint64
	errorsByType      map[string]uint64
	errorsByComponent map[string]uint64
}

func NewStats() *Stats {
	return &Stats{
		portals:           map[string]*PortalStats{},
		records:           map[string]uint64{},
		retries:           map[string]uint64{},
		errorsByType:      map[string]uint64{},
		errorsByComponent: map[string]uint64{},
	}
}

// portal must be called with s.mu held.
func (s *Stats) portal(name string) *PortalStats {
	name = orUnknown(name)
	p, ok := s.portals[name]
	if !ok {
		p = &PortalStats{}
		s.portals[name] = p
	}
	return p
}

func (s *Stats) IncPagesNavigated(portal string) {
	s.mu.Lock()
	s.portal(portal).PagesNavigated++
	s.mu.Unlock()
}

func (s *Stats) AddJobsDiscovered(portal string, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.portal(portal).JobsDiscovered += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) IncBotDetection(portal string) {
	s.mu.Lock()
	s.portal(portal).BotDetections++
	s.mu.Unlock()
}

func (s *Stats) ObserveRun(portal string, d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	p := s.portal(portal)
	p.Runs++
	p.runTime += d
	s.mu.Unlock()
}

func (s *Stats) IncRetries(component string) {
	s.mu.Lock()
	s.retries[orUnknown(component)]++
	s.mu.Unlock()
}

func (s *Stats) IncRecord(status string) {
	s.mu.Lock()
	s.records[orUnknown(status)]++
	s.mu.Unlock()
}

func (s *Stats) IncError(errType, component string) {
	s.mu.Lock()
	s.errorsTotal++
	s.errorsByType[orUnknown(errType)]++
	s.errorsByComponent[orUnknown(component)]++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	portals := make(map[string]PortalStats, len(s.portals))
	for name, p := range s.portals {
		out := *p
		if out.Runs > 0 {
			out.RunSecondsAvg = out.runTime.Seconds() / float64(out.Runs)
		}
		out.runTime = 0
		portals[name] = out
	}
	return StatsSnapshot{
		Portals:           portals,
		RecordsByStatus:   maps.Clone(s.records),
		RetriesBy:         maps.Clone(s.retries),
		ErrorsTotal:       s.errorsTotal,
		ErrorsByType:      maps.Clone(s.errorsByType),
		ErrorsByComponent: maps.Clone(s.errorsByComponent),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return ErrorUnknown
	}
	return s
}

var global = NewStats()

func IncPagesNavigated(portal string) { global.IncPagesNavigated(portal) }

func AddJobsDiscovered(portal string, n int) { global.AddJobsDiscovered(portal, n) }

func IncBotDetection(portal string) { global.IncBotDetection(portal) }

func ObserveRun(portal string, d time.Duration) { global.ObserveRun(portal, d) }

func IncRetries(component string) { global.IncRetries(component) }

func IncRecord(status string) { global.IncRecord(status) }

func IncError(errType, component string) { global.IncError(errType, component) }

func Snapshot() StatsSnapshot { return global.Snapshot() }
