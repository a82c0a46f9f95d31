package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxBackoffLevel = 5

// Budget spaces requests issued against one adapter. It is shared by every
// task of that adapter; all state changes happen under mu so concurrent tasks
// never compute a stale spacing.
type Budget struct {
	mu          sync.Mutex
	spacing     time.Duration
	level       int
	limiter     *rate.Limiter
	lastRequest time.Time
}

func NewBudget(spacing time.Duration) *Budget {
	b := &Budget{spacing: spacing}
	b.limiter = rate.NewLimiter(b.limitLocked(), 1)
	return b
}

// Wait blocks until the caller may issue its next request. The slot is
// reserved before sleeping so two waiters never share one.
func (b *Budget) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	now := time.Now()
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	b.lastRequest = now.Add(delay)
	b.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	if err := sleepWithContext(ctx, delay); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

// Throttle widens the spacing after the target pushed back.
func (b *Budget) Throttle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.level < maxBackoffLevel {
		b.level++
		b.limiter.SetLimit(b.limitLocked())
	}
}

// Relax narrows the spacing by one level after a clean request.
func (b *Budget) Relax() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.level > 0 {
		b.level--
		b.limiter.SetLimit(b.limitLocked())
	}
}

// Level is the current backoff level.
func (b *Budget) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Spacing is the minimum distance currently enforced between requests.
func (b *Budget) Spacing() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spacing << b.level
}

// LastRequest is the time the most recently reserved request was released.
func (b *Budget) LastRequest() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRequest
}

func (b *Budget) limitLocked() rate.Limit {
	if b.spacing <= 0 {
		return rate.Inf
	}
	return rate.Every(b.spacing << b.level)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
