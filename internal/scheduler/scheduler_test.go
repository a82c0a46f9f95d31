package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/runner"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []runner.Request
	fail string
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) (runner.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if req.Query == f.fail {
		return runner.Report{State: runner.StateFailed}, errors.New("discovery failed")
	}
	return runner.Report{State: runner.StateDone}, nil
}

func (f *fakeRunner) requests() []runner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Request(nil), f.reqs...)
}

type fakePruner struct {
	olderThan time.Duration
	calls     int
}

func (p *fakePruner) DeleteOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	p.calls++
	p.olderThan = olderThan
	return 3, nil
}

func serverConfig() config.Server {
	return config.Server{
		Schedule: "@every 6h",
		Searches: []config.Search{
			{Portal: "indeed", Query: "golang", Location: "Remote"},
			{Portal: "indeed", Query: "rust", Location: "Berlin"},
			{Portal: "indeed", Query: "python", Location: "Remote"},
		},
		RetentionDays: 30,
	}
}

func TestRunSearchesContinuesAfterFailure(t *testing.T) {
	runs := &fakeRunner{fail: "rust"}
	s := New(runs, serverConfig(), nil)

	s.RunSearches(context.Background())

	got := runs.requests()
	require.Len(t, got, 3)
	assert.Equal(t, runner.Request{Portal: "indeed", Query: "golang", Location: "Remote"}, got[0])
	assert.Equal(t, "python", got[2].Query)
}

func TestRunSearchesStopsOnCancelledContext(t *testing.T) {
	runs := &fakeRunner{}
	s := New(runs, serverConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.RunSearches(ctx)
	assert.Empty(t, runs.requests())
}

func TestPruneUsesRetention(t *testing.T) {
	p := &fakePruner{}
	s := New(&fakeRunner{}, serverConfig(), p)

	s.Prune(context.Background())
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 30*24*time.Hour, p.olderThan)

	cfg := serverConfig()
	cfg.RetentionDays = 0
	New(&fakeRunner{}, cfg, p).Prune(context.Background())
	assert.Equal(t, 1, p.calls)
}

func TestStartRunsSearchesImmediately(t *testing.T) {
	runs := &fakeRunner{}
	s := New(runs, serverConfig(), &fakePruner{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return len(runs.requests()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := serverConfig()
	cfg.Schedule = "every now and then"
	err := New(&fakeRunner{}, cfg, nil).Start(context.Background())
	assert.Error(t, err)
}
