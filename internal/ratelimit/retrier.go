package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/observability"
)

// Retrier runs an operation under the adapter's Budget and retries retryable
// failures with capped exponential backoff.
type Retrier struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
	Budget     *Budget
	Component  string

	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

func NewRetrier(maxRetries int, base, max time.Duration, budget *Budget) *Retrier {
	return &Retrier{
		MaxRetries: maxRetries,
		Base:       base,
		Max:        max,
		Budget:     budget,
		sleep:      sleepWithContext,
		jitter:     halfJitter,
	}
}

// Delay is the backoff applied before attempt n+1, ignoring jitter.
func (r *Retrier) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := r.Base
	for i := 1; i < n; i++ {
		d *= 2
		if r.Max > 0 && d >= r.Max {
			return r.Max
		}
	}
	if r.Max > 0 && d > r.Max {
		d = r.Max
	}
	return d
}

// Do calls op until it succeeds, fails permanently or MaxRetries attempts
// have been made. The number of attempts is written to *attempts when it is
// non-nil.
func (r *Retrier) Do(ctx context.Context, attempts *int, op func(context.Context) error) error {
	maxAttempts := r.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	jitter := r.jitter
	if jitter == nil {
		jitter = halfJitter
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 {
			d := r.Delay(n - 1)
			d += jitter(d)
			observability.IncRetries(r.Component)
			if err := sleep(ctx, d); err != nil {
				return err
			}
		}
		if r.Budget != nil {
			if err := r.Budget.Wait(ctx); err != nil {
				return err
			}
		}
		if attempts != nil {
			*attempts = n
		}

		err := op(ctx)
		if err == nil {
			if r.Budget != nil {
				r.Budget.Relax()
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if failure.Throttling(err) && r.Budget != nil {
			r.Budget.Throttle()
		}
		if !failure.Retryable(err) {
			return err
		}
		slog.Warn("attempt failed", "component", r.Component, "attempt", n, "max", maxAttempts, "error", err)
	}

	return &failure.Error{
		Kind:     failure.KindRetriesExhausted,
		URL:      urlOf(lastErr),
		Attempts: maxAttempts,
		Err:      lastErr,
	}
}

func urlOf(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe.URL
	}
	return ""
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return rand.N(d / 2)
}

// ForScrape builds a retrier with its own Budget from the scrape settings.
func ForScrape(cfg config.Scrape, component string) *Retrier {
	r := NewRetrier(cfg.MaxRetries, cfg.RetryBaseDelay(), cfg.RetryMaxDelay(), NewBudget(cfg.MinRequestSpacing()))
	r.Component = component
	return r
}
