package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/failure"
)

type recorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestRetrier(max int, rec *recorder) *Retrier {
	r := NewRetrier(max, 5*time.Second, 40*time.Second, nil)
	r.sleep = rec.sleep
	r.jitter = func(time.Duration) time.Duration { return 0 }
	return r
}

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		rec := &recorder{}
		r := newTestRetrier(5, rec)

		calls := 0
		attempts := 0
		err := r.Do(context.Background(), &attempts, func(context.Context) error {
			calls++
			if calls <= k {
				return failure.Timeout("https://example.com/job", context.DeadlineExceeded)
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, k+1, calls)
		assert.Equal(t, k+1, attempts)
		require.Len(t, rec.delays, k)
		for i := 1; i < len(rec.delays); i++ {
			assert.GreaterOrEqual(t, rec.delays[i], rec.delays[i-1])
		}
	}
}

func TestRetrierDelaysDoubleUpToMax(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(6, rec)

	_ = r.Do(context.Background(), nil, func(context.Context) error {
		return failure.Timeout("", errors.New("slow"))
	})

	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		40 * time.Second,
	}, rec.delays)
}

func TestRetrierExhaustsAfterMaxAttempts(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(3, rec)

	calls := 0
	attempts := 0
	err := r.Do(context.Background(), &attempts, func(context.Context) error {
		calls++
		return failure.BotDetected("https://example.com/job", "captcha", false)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, failure.KindRetriesExhausted, failure.KindOf(err))
	assert.Equal(t, failure.KindBotDetected, failure.CauseOf(err))
	assert.True(t, failure.IsBotDetected(err))

	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, "https://example.com/job", fe.URL)
}

func TestRetrierStopsOnPermanentFailure(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(5, rec)

	calls := 0
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return failure.FromStatus("https://example.com/gone", 404)
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestRetrierObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(5, time.Hour, time.Hour, nil)

	calls := 0
	err := r.Do(ctx, nil, func(context.Context) error {
		calls++
		cancel()
		return failure.Timeout("", errors.New("slow"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetrierThrottlesBudget(t *testing.T) {
	rec := &recorder{}
	b := NewBudget(0)
	r := newTestRetrier(3, rec)
	r.Budget = b

	calls := 0
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return failure.FromStatus("https://example.com", 429)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, b.Level())
}

func TestBudgetSpacesRequests(t *testing.T) {
	b := NewBudget(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestBudgetThrottleAndRelax(t *testing.T) {
	b := NewBudget(time.Second)
	assert.Equal(t, time.Second, b.Spacing())

	b.Throttle()
	b.Throttle()
	assert.Equal(t, 2, b.Level())
	assert.Equal(t, 4*time.Second, b.Spacing())

	for i := 0; i < 10; i++ {
		b.Throttle()
	}
	assert.Equal(t, maxBackoffLevel, b.Level())

	b.Relax()
	assert.Equal(t, maxBackoffLevel-1, b.Level())
}

func TestBudgetWaitCancelled(t *testing.T) {
	b := NewBudget(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.Wait(ctx))
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}

func TestBudgetConcurrentWaitersGetDistinctSlots(t *testing.T) {
	b := NewBudget(20 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Wait(ctx))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestHalfJitterBounds(t *testing.T) {
	assert.Zero(t, halfJitter(0))
	assert.Zero(t, halfJitter(1))
	assert.Zero(t, halfJitter(-time.Second))

	for _, d := range []time.Duration{2, 3, time.Millisecond, 500 * time.Millisecond, 30 * time.Second} {
		for range 200 {
			j := halfJitter(d)
			assert.GreaterOrEqual(t, j, time.Duration(0), d)
			assert.Less(t, j, d/2, d)
		}
	}
}
