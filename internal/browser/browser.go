// Package browser is the page-control surface the scrapers drive. Callers
// own the Browser: open it once, hand it to adapters, Close it on shutdown.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/config"
)

// ErrScriptUnsupported is returned by Evaluate on surfaces that cannot run
// page scripts.
var ErrScriptUnsupported = errors.New("script evaluation not supported")

type Browser interface {
	OpenPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one tab. Navigate classifies failures with the failure package:
// timeouts are retryable, HTTP statuses map through failure.FromStatus.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Evaluate(ctx context.Context, script string) (any, error)
	Content(ctx context.Context) (string, error)
	Close() error
}

// Options configures a Browser at launch.
type Options struct {
	Headless          bool
	Channel           string
	IgnoreHTTPSErrors bool
	UserAgent         string
	Locale            string
	RespectRobotsTxt  bool
	Proxy             *Proxy
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	proxy, err := ResolveProxy(cfg.Proxy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Headless:          cfg.Browser.Headless,
		Channel:           cfg.Browser.Channel,
		IgnoreHTTPSErrors: cfg.Browser.IgnoreHTTPSErrors,
		UserAgent:         cfg.Browser.UserAgent,
		Locale:            cfg.Browser.Locale,
		RespectRobotsTxt:  cfg.Browser.RespectRobotsTxt,
		Proxy:             proxy,
	}, nil
}

// Open starts the browser named by cfg.Browser.Driver.
func Open(ctx context.Context, cfg *config.Config) (Browser, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	switch cfg.Browser.Driver {
	case config.DriverPlaywright:
		return Launch(ctx, opts)
	case config.DriverHTTP:
		return NewHTTP(opts), nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
}
