// Package scheduler runs the configured searches on a cron schedule and
// prunes old jobs once a day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/runner"
)

// Runner executes one search to completion.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (runner.Report, error)
}

// Pruner deletes stored jobs older than a cutoff.
type Pruner interface {
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

const pruneSpec = "@daily"

type Scheduler struct {
	cron      *cron.Cron
	runs      Runner
	pruner    Pruner
	spec      string
	searches  []config.Search
	retention time.Duration
}

// New builds a scheduler for cfg. pruner may be nil.
func New(runs Runner, cfg config.Server, pruner Pruner) *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runs:      runs,
		pruner:    pruner,
		spec:      cfg.Schedule,
		searches:  cfg.Searches,
		retention: cfg.Retention(),
	}
}

// Start registers the jobs and starts the cron loop. When a search schedule
// is configured the searches also run once right away.
func (s *Scheduler) Start(ctx context.Context) error {
	scheduled := s.spec != "" && len(s.searches) > 0
	if scheduled {
		if _, err := s.cron.AddFunc(s.spec, func() { s.RunSearches(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", s.spec, err)
		}
	}
	if s.pruner != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(pruneSpec, func() { s.Prune(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", pruneSpec, err)
		}
	}

	s.cron.Start()
	slog.Info("scheduler started", "schedule", s.spec, "searches", len(s.searches), "retention", s.retention.String())

	if scheduled {
		go s.RunSearches(ctx)
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunSearches runs every configured search in order. A failed search does
// not stop the rest.
func (s *Scheduler) RunSearches(ctx context.Context) {
	slog.Info("scheduled scrape cycle started", "searches", len(s.searches))
	for _, search := range s.searches {
		if ctx.Err() != nil {
			return
		}
		req := runner.Request{Portal: search.Portal, Query: search.Query, Location: search.Location}
		rep, err := s.runs.Run(ctx, req)
		if err != nil {
			slog.Error("scheduled search failed", "portal", req.Portal, "query", req.Query, "location", req.Location, "error", err)
			continue
		}
		slog.Info("scheduled search done", "run_id", rep.ID.String(), "portal", req.Portal, "succeeded", rep.Succeeded, "partial", rep.Partial, "failed", rep.Failed)
	}
	slog.Info("scheduled scrape cycle complete")
}

// Prune deletes jobs older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) {
	if s.pruner == nil || s.retention <= 0 {
		return
	}
	count, err := s.pruner.DeleteOldJobs(ctx, s.retention)
	if err != nil {
		slog.Error("retention cleanup failed", "error", err)
		return
	}
	slog.Info("retention cleanup done", "deleted", count)
}

type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
