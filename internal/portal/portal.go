// Package portal defines the contract every job site implements and the
// helpers they share: bot-challenge detection, readiness waits, scrolling.
package portal

import (
	"context"
	"fmt"
	"slices"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
)

// Adapter discovers detail URLs for a search and scrapes one detail page.
// ScrapeJob records the number of attempts it made on task.
type Adapter interface {
	Name() string
	DiscoverJobs(ctx context.Context, query, location string) (model.DiscoveryResult, error)
	ScrapeJob(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error)
}

// Deps are the collaborators handed to a Factory.
type Deps struct {
	Browser browser.Browser
	Scrape  config.Scrape
}

type Factory func(Deps) (Adapter, error)

// Registry maps portal names to factories. It is built by the caller and
// passed to the runner.
type Registry map[string]Factory

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r Registry) Build(name string, deps Deps) (Adapter, error) {
	factory, ok := r[name]
	if !ok {
		return nil, &failure.Error{Kind: failure.KindUnknownPortal, Err: fmt.Errorf("no adapter registered for %q", name)}
	}
	return factory(deps)
}
