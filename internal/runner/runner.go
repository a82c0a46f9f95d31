// Package runner drives a search from discovery through per-URL scraping and
// hands every result to a sink.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/baxromumarov/portal-scraper/internal/dedup"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
	"github.com/baxromumarov/portal-scraper/internal/observability"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/sink"
)

const maxTrackedRuns = 100

type Runner struct {
	registry portal.Registry
	deps     portal.Deps
	sink     sink.Sink
	seen     dedup.Cache

	pages *semaphore.Weighted
	serp  *semaphore.Weighted

	active sync.WaitGroup

	mu       sync.Mutex
	adapters map[string]portal.Adapter
	runs     map[uuid.UUID]*Run
	order    []uuid.UUID
}

type Option func(*Runner)

// WithSeenCache skips URLs the cache already holds and marks every URL that
// produced a record.
func WithSeenCache(c dedup.Cache) Option {
	return func(r *Runner) { r.seen = c }
}

func New(registry portal.Registry, deps portal.Deps, out sink.Sink, opts ...Option) *Runner {
	pages := int64(deps.Scrape.MaxConcurrentPages)
	if pages < 1 {
		pages = 1
	}
	serp := int64(deps.Scrape.MaxConcurrentSERP)
	if serp < 1 {
		serp = 1
	}
	if out == nil {
		out = sink.Discard{}
	}
	r := &Runner{
		registry: registry,
		deps:     deps,
		sink:     out,
		pages:    semaphore.NewWeighted(pages),
		serp:     semaphore.NewWeighted(serp),
		adapters: make(map[string]portal.Adapter),
		runs:     make(map[uuid.UUID]*Run),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Portals lists the registered portal names.
func (r *Runner) Portals() []string {
	return r.registry.Names()
}

// Run executes req to completion.
func (r *Runner) Run(ctx context.Context, req Request) (Report, error) {
	return r.Start(ctx, req).Wait()
}

// Start executes req in the background. The run stops early when ctx is
// cancelled.
func (r *Runner) Start(ctx context.Context, req Request) *Run {
	run := newRun(req)
	r.track(run)
	r.active.Add(1)
	go func() {
		defer r.active.Done()
		r.execute(ctx, run, req)
	}()
	return run
}

// Drain blocks until every started run has finished or ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a recently started run.
func (r *Runner) Get(id uuid.UUID) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	return run, ok
}

func (r *Runner) track(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID()] = run
	r.order = append(r.order, run.ID())
	for len(r.order) > maxTrackedRuns {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *Runner) adapter(name string) (portal.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	a, err := r.registry.Build(name, r.deps)
	if err != nil {
		return nil, err
	}
	r.adapters[name] = a
	return a, nil
}

func (r *Runner) execute(ctx context.Context, run *Run, req Request) {
	start := time.Now()
	log := slog.With("run_id", run.ID().String(), "portal", req.Portal, "query", req.Query, "location", req.Location)
	defer func() {
		observability.ObserveRun(req.Portal, time.Since(start))
	}()

	adapter, err := r.adapter(req.Portal)
	if err != nil {
		log.Error("run failed", "error", err)
		run.finish(StateFailed, err)
		return
	}

	run.setState(StateDiscovering)
	log.Info("discovery started")
	disc, err := r.discover(ctx, adapter, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("run cancelled during discovery")
			run.finish(StateCancelled, ctx.Err())
			return
		}
		if failure.KindOf(err) != failure.KindDiscoveryFailed {
			err = &failure.Error{Kind: failure.KindDiscoveryFailed, Err: err}
		}
		log.Error("discovery failed", "error", err)
		run.finish(StateFailed, err)
		return
	}
	run.setDiscovered(len(disc.URLs))
	log.Info("discovery finished", "urls", len(disc.URLs))

	run.setState(StateScraping)
	emitCtx := context.WithoutCancel(ctx)
	for res := range r.dispatch(ctx, adapter, run, disc.URLs) {
		observability.IncRecord(string(res.Status))
		if err := r.sink.Emit(emitCtx, res); err != nil {
			observability.IncError(observability.ErrorStore, "sink")
			log.Error("emit result failed", "url", res.URL, "error", err)
		}
		run.add(res)
	}

	rep := run.Snapshot()
	summary := []any{
		"discovered", rep.Discovered,
		"succeeded", rep.Succeeded,
		"partial", rep.Partial,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	}
	if rep.BotDetected > 0 {
		log.Warn("bot challenges hit during run", "bot_detected", rep.BotDetected)
	}
	if ctx.Err() != nil {
		log.Warn("run cancelled", summary...)
		run.finish(StateCancelled, ctx.Err())
		return
	}
	log.Info("run finished", summary...)
	run.finish(StateDone, nil)
}

func (r *Runner) discover(ctx context.Context, adapter portal.Adapter, req Request) (model.DiscoveryResult, error) {
	if err := r.serp.Acquire(ctx, 1); err != nil {
		return model.DiscoveryResult{}, err
	}
	defer r.serp.Release(1)
	return adapter.DiscoverJobs(ctx, req.Query, req.Location)
}

// dispatch admits one scrape per URL in discovery order, at most
// MaxConcurrentPages at a time, and streams results in completion order. URLs
// never admitted because ctx ended come back as cancelled failures.
func (r *Runner) dispatch(ctx context.Context, adapter portal.Adapter, run *Run, urls []string) <-chan model.ScrapeResult {
	out := make(chan model.ScrapeResult)
	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(out)
		}()

		for i, u := range urls {
			if r.alreadySeen(ctx, u) {
				run.skip()
				continue
			}
			if err := r.pages.Acquire(ctx, 1); err != nil {
				for _, rest := range urls[i:] {
					out <- cancelled(adapter.Name(), rest, err)
				}
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer r.pages.Release(1)
				out <- r.scrape(ctx, adapter, u)
			}()
		}
	}()
	return out
}

func (r *Runner) scrape(ctx context.Context, adapter portal.Adapter, url string) model.ScrapeResult {
	task := &model.ScrapeTask{URL: url, Portal: adapter.Name()}
	out, err := adapter.ScrapeJob(ctx, task)

	res := model.ScrapeResult{Portal: task.Portal, URL: url, Attempts: task.Attempts}
	if err != nil {
		res.Status = model.StatusFailed
		res.Failure = failureOf(url, err, task.Attempts)
		observability.IncError(observability.ClassifyScrapeError(err), task.Portal)
		if failure.IsBotDetected(err) {
			slog.Warn("scrape blocked", "portal", task.Portal, "url", url, "attempts", task.Attempts, "error", err)
		} else {
			slog.Info("scrape failed", "portal", task.Portal, "url", url, "kind", res.Failure.Kind, "attempts", task.Attempts, "error", err)
		}
		return res
	}

	rec := out.Record
	res.Record = &rec
	res.Strategy = out.Strategy
	res.Missing = out.Missing
	res.Status = model.StatusSuccess
	if out.Status == extract.PartialMatch {
		res.Status = model.StatusPartial
	}
	r.markSeen(ctx, url)
	slog.Info("scraped job", "portal", task.Portal, "url", url, "status", res.Status, "strategy", res.Strategy, "attempts", task.Attempts)
	return res
}

func (r *Runner) alreadySeen(ctx context.Context, url string) bool {
	if r.seen == nil {
		return false
	}
	seen, err := r.seen.Seen(ctx, url)
	if err != nil {
		slog.Warn("seen cache lookup failed", "url", url, "error", err)
		return false
	}
	return seen
}

func (r *Runner) markSeen(ctx context.Context, url string) {
	if r.seen == nil {
		return
	}
	if err := r.seen.Mark(context.WithoutCancel(ctx), url); err != nil {
		slog.Warn("seen cache update failed", "url", url, "error", err)
	}
}

func failureOf(url string, err error, attempts int) *model.ScrapeFailure {
	f := &model.ScrapeFailure{
		URL:      url,
		Kind:     string(failure.KindOf(err)),
		Message:  err.Error(),
		Attempts: attempts,
	}
	if cause := failure.CauseOf(err); cause != failure.KindOf(err) {
		f.Cause = string(cause)
	}
	return f
}

func cancelled(portalName, url string, err error) model.ScrapeResult {
	if err == nil {
		err = context.Canceled
	}
	err = &failure.Error{Kind: failure.KindCancelled, URL: url, Err: err}
	return model.ScrapeResult{
		Portal:  portalName,
		URL:     url,
		Status:  model.StatusFailed,
		Failure: failureOf(url, err, 0),
	}
}
