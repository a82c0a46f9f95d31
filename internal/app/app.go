// Package app wires configuration into a ready-to-use runner for the
// command-line entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/dedup"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/portal/indeed"
	"github.com/baxromumarov/portal-scraper/internal/runner"
	"github.com/baxromumarov/portal-scraper/internal/sink"
)

// Options select the optional parts of the wiring.
type Options struct {
	// Console receives one JSON line per result when set.
	Console io.Writer
	// MemoryDedup keeps an in-process seen cache when no redis is configured.
	MemoryDedup bool
}

type App struct {
	Config *config.Config
	Runner *runner.Runner
	// Store is nil unless a database URL is configured.
	Store *sink.Postgres

	closers []func() error
}

// Registry returns every portal adapter this build knows about.
func Registry() portal.Registry {
	r := portal.Registry{}
	indeed.Register(r)
	return r
}

// NewLogger builds the JSON logger used by every command.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// New opens the browser, sinks and seen cache described by cfg. On error
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	b, err := browser.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	a.closers = append(a.closers, b.Close)

	var sinks sink.Multi
	if opts.Console != nil {
		sinks = append(sinks, sink.NewConsole(opts.Console))
	}
	if cfg.Database.URL != "" {
		store, err := sink.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
		sinks = append(sinks, store)
	}

	var runOpts []runner.Option
	switch {
	case cfg.Redis.URL != "":
		client, err := dedup.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		seen := dedup.NewRedis(client, cfg.Redis.TTL())
		a.closers = append(a.closers, seen.Close)
		runOpts = append(runOpts, runner.WithSeenCache(seen))
	case opts.MemoryDedup:
		runOpts = append(runOpts, runner.WithSeenCache(dedup.NewMemory(cfg.Redis.TTL())))
	}

	deps := portal.Deps{Browser: b, Scrape: cfg.Scrape}
	a.Runner = runner.New(Registry(), deps, sinks, runOpts...)

	slog.Info("scraper ready",
		"browser", cfg.Browser.Driver,
		"portals", a.Runner.Portals(),
		"max_concurrent_pages", cfg.Scrape.MaxConcurrentPages,
		"database", a.Store != nil,
		"redis", cfg.Redis.URL != "",
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
