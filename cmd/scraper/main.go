package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/baxromumarov/portal-scraper/internal/app"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/runner"
)

func main() {
	portalName := flag.String("portal", "indeed", "Portal to scrape")
	query := flag.String("query", "", "Search query (required)")
	location := flag.String("location", "", "Search location")
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	// results own stdout
	slog.SetDefault(app.NewLogger(os.Stderr, "info"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel))

	if *query == "" {
		slog.Error("-query is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Console: os.Stdout})
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	rep, err := a.Runner.Run(ctx, runner.Request{Portal: *portalName, Query: *query, Location: *location})
	if cerr := a.Close(); cerr != nil {
		slog.Warn("shutdown incomplete", "error", cerr)
	}
	if err != nil {
		slog.Error("run did not complete", "run_id", rep.ID.String(), "state", rep.State, "error", err)
		os.Exit(1)
	}
}
