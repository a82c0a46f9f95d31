package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/api"
	"github.com/baxromumarov/portal-scraper/internal/app"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	slog.SetDefault(app.NewLogger(os.Stdout, "info"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.LogLevel))

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{MemoryDedup: true})
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}()

	var (
		jobs   api.JobStore
		pruner scheduler.Pruner
	)
	if a.Store != nil {
		workDir, _ := os.Getwd()
		schemaPath := filepath.Join(workDir, "internal", "sink", "schema.sql")
		if err := a.Store.RunMigrations(ctx, schemaPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		jobs, pruner = a.Store, a.Store
	}

	sched := scheduler.New(a.Runner, cfg.Server, pruner)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	// runs in flight must finish before the browser closes under them
	defer func() {
		sched.Stop()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Runner.Drain(drainCtx); err != nil {
			slog.Warn("runs still active at shutdown", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewServer(ctx, a.Runner, jobs).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		return err
	}
	return nil
}
