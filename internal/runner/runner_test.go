package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/browser/browsertest"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/dedup"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/portal/indeed"
)

type memorySink struct {
	mu  sync.Mutex
	got []model.ScrapeResult
}

func (s *memorySink) Emit(_ context.Context, res model.ScrapeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, res)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) results() []model.ScrapeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ScrapeResult(nil), s.got...)
}

type stubAdapter struct {
	urls        []string
	discoverErr error
	scrape      func(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error)
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) DiscoverJobs(_ context.Context, query, location string) (model.DiscoveryResult, error) {
	if s.discoverErr != nil {
		return model.DiscoveryResult{}, s.discoverErr
	}
	return model.DiscoveryResult{Portal: "stub", Query: query, Location: location, URLs: s.urls}, nil
}

func (s *stubAdapter) ScrapeJob(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
	task.Attempts = 1
	if s.scrape != nil {
		return s.scrape(ctx, task)
	}
	return extract.Outcome{
		Status:   extract.Success,
		Strategy: "jsonld",
		Record:   model.JobRecord{URL: task.URL, Title: "Job", SourcePortal: "stub"},
	}, nil
}

func stubRegistry(a *stubAdapter) portal.Registry {
	return portal.Registry{"stub": func(portal.Deps) (portal.Adapter, error) { return a, nil }}
}

func stubDeps(pages int) portal.Deps {
	return portal.Deps{Scrape: config.Scrape{MaxConcurrentPages: pages, MaxConcurrentSERP: 1}}
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://stub/jobs/%d", i)
	}
	return out
}

func serpHTML(keys ...string) string {
	results := make([]string, len(keys))
	for i, k := range keys {
		results[i] = fmt.Sprintf(`{"jobkey":%q}`, k)
	}
	return fmt.Sprintf(`<html><body><div id="mosaic-provider-jobcards"></div>
<script>window.mosaic.providerData["mosaic-provider-jobcards"]={"metaData":{"mosaicProviderJobCardsModel":{"results":[%s]}}};</script>
</body></html>`, strings.Join(results, ","))
}

const detailHTML = `<html><head><script type="application/ld+json">
{"@type":"JobPosting","title":"Go Developer","hiringOrganization":{"name":"Acme"},
 "jobLocation":{"address":{"addressLocality":"Remote"}},"description":"Write Go."}
</script></head><body><div id="jobDescriptionText">Write Go.</div></body></html>`

func TestRunBoundsOpenPagesAndIsolatesFailures(t *testing.T) {
	keys := []string{"a", "b", "c", "gone", "d", "e"}
	b := browsertest.New().
		Page(indeed.SearchURL(indeed.BaseURL, "golang", "Remote", 0), serpHTML(keys...)).
		Page(indeed.SearchURL(indeed.BaseURL, "golang", "Remote", 1), serpHTML(keys...))
	for _, k := range keys {
		if k != "gone" {
			b.Page(indeed.ViewURL(indeed.BaseURL, k), detailHTML)
		}
	}
	b.Latency = 15 * time.Millisecond

	registry := portal.Registry{}
	indeed.Register(registry)
	out := &memorySink{}
	deps := portal.Deps{Browser: b, Scrape: config.Scrape{
		MaxConcurrentPages:  2,
		MaxConcurrentSERP:   1,
		MaxRetries:          3,
		NavigationTimeoutMS: 1000,
		SelectorTimeoutMS:   50,
		MaxPages:            3,
	}}
	r := New(registry, deps, out)

	rep, err := r.Run(context.Background(), Request{Portal: "indeed", Query: "golang", Location: "Remote"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 6, rep.Discovered)
	assert.Equal(t, 5, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Len(t, rep.Results, 6)
	assert.Len(t, out.results(), 6)
	assert.LessOrEqual(t, b.MaxOpen(), 2)
	assert.Zero(t, b.Open())

	for _, res := range rep.Results {
		if res.URL == indeed.ViewURL(indeed.BaseURL, "gone") {
			require.NotNil(t, res.Failure)
			assert.Equal(t, string(failure.KindNotFound), res.Failure.Kind)
			assert.Equal(t, 1, res.Attempts)
			continue
		}
		assert.Equal(t, model.StatusSuccess, res.Status)
		require.NotNil(t, res.Record)
		assert.Equal(t, "Go Developer", res.Record.Title)
	}
}

func TestRunPageGateBound(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	a := &stubAdapter{
		urls: urls(8),
		scrape: func(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return extract.Outcome{Status: extract.Success, Record: model.JobRecord{URL: task.URL}}, nil
		},
	}
	r := New(stubRegistry(a), stubDeps(3), nil)

	rep, err := r.Run(context.Background(), Request{Portal: "stub", Query: "go"})
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Succeeded)
	assert.LessOrEqual(t, peak, 3)
	assert.Positive(t, peak)
}

func TestRunDiscoveryFailure(t *testing.T) {
	registry := portal.Registry{}
	indeed.Register(registry)
	out := &memorySink{}
	r := New(registry, portal.Deps{Browser: browsertest.New(), Scrape: config.Scrape{MaxRetries: 1, MaxPages: 1}}, out)

	rep, err := r.Run(context.Background(), Request{Portal: "indeed", Query: "golang"})
	require.Error(t, err)
	assert.Equal(t, failure.KindDiscoveryFailed, failure.KindOf(err))
	assert.Equal(t, StateFailed, rep.State)
	assert.NotEmpty(t, rep.Error)
	assert.NotNil(t, rep.FinishedAt)
	assert.Empty(t, out.results())
}

func TestRunWrapsPlainDiscoveryErrors(t *testing.T) {
	a := &stubAdapter{discoverErr: errors.New("boom")}
	rep, err := New(stubRegistry(a), stubDeps(1), nil).Run(context.Background(), Request{Portal: "stub"})
	assert.Equal(t, failure.KindDiscoveryFailed, failure.KindOf(err))
	assert.Equal(t, StateFailed, rep.State)
}

func TestRunUnknownPortal(t *testing.T) {
	r := New(portal.Registry{}, stubDeps(1), nil)
	rep, err := r.Run(context.Background(), Request{Portal: "monster"})
	assert.Equal(t, failure.KindUnknownPortal, failure.KindOf(err))
	assert.Equal(t, StateFailed, rep.State)
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	a := &stubAdapter{
		urls: urls(5),
		scrape: func(ctx context.Context, _ *model.ScrapeTask) (extract.Outcome, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return extract.Outcome{}, ctx.Err()
		},
	}
	out := &memorySink{}
	r := New(stubRegistry(a), stubDeps(1), out)

	ctx, cancel := context.WithCancel(context.Background())
	run := r.Start(ctx, Request{Portal: "stub", Query: "go"})
	<-started
	cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	rep, err := run.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, rep.State)
	assert.Len(t, rep.Results, 5)
	assert.Equal(t, 5, rep.Failed)
	for _, res := range rep.Results {
		assert.Equal(t, string(failure.KindCancelled), res.Failure.Kind)
	}
	assert.Len(t, out.results(), 5)
}

func TestRunPartialAndBotCounters(t *testing.T) {
	list := urls(3)
	a := &stubAdapter{
		urls: list,
		scrape: func(_ context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
			switch task.URL {
			case list[0]:
				return extract.Outcome{
					Status:   extract.PartialMatch,
					Strategy: "selector",
					Missing:  []string{model.FieldLocation},
					Record:   model.JobRecord{URL: task.URL, Title: "Go", Company: "Acme"},
				}, nil
			case list[1]:
				return extract.Outcome{}, &failure.Error{
					Kind:     failure.KindRetriesExhausted,
					URL:      task.URL,
					Attempts: 3,
					Err:      failure.BotDetected(task.URL, "captcha", false),
				}
			}
			return extract.Outcome{Status: extract.Success, Record: model.JobRecord{URL: task.URL}}, nil
		},
	}
	rep, err := New(stubRegistry(a), stubDeps(2), nil).Run(context.Background(), Request{Portal: "stub"})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Partial)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.BotDetected)

	for _, res := range rep.Results {
		switch res.URL {
		case list[0]:
			assert.Equal(t, model.StatusPartial, res.Status)
			assert.Equal(t, []string{model.FieldLocation}, res.Missing)
		case list[1]:
			assert.Equal(t, string(failure.KindRetriesExhausted), res.Failure.Kind)
			assert.Equal(t, string(failure.KindBotDetected), res.Failure.Cause)
		}
	}
}

func TestRunSkipsURLsSeenEarlier(t *testing.T) {
	list := urls(3)
	cache := dedup.NewMemory(0)
	require.NoError(t, cache.Mark(context.Background(), list[1]))

	a := &stubAdapter{urls: list}
	r := New(stubRegistry(a), stubDeps(2), nil, WithSeenCache(cache))

	rep, err := r.Run(context.Background(), Request{Portal: "stub"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 3, cache.Len())

	rep, err = r.Run(context.Background(), Request{Portal: "stub"})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Skipped)
	assert.Empty(t, rep.Results)
}

func TestGetReturnsTrackedRun(t *testing.T) {
	r := New(stubRegistry(&stubAdapter{urls: urls(1)}), stubDeps(1), nil)
	run := r.Start(context.Background(), Request{Portal: "stub"})
	got, ok := r.Get(run.ID())
	require.True(t, ok)
	rep, err := got.Wait()
	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, run.ID(), rep.ID)
}

func TestDrainWaitsForStartedRuns(t *testing.T) {
	release := make(chan struct{})
	a := &stubAdapter{
		urls: urls(2),
		scrape: func(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
			<-release
			return extract.Outcome{Status: extract.Success, Record: model.JobRecord{URL: task.URL}}, nil
		},
	}
	r := New(stubRegistry(a), stubDeps(2), nil)
	run := r.Start(context.Background(), Request{Portal: "stub"})

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, r.Drain(context.Background()))
	assert.Equal(t, StateDone, run.Snapshot().State)
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateScraping.Terminal())
	assert.True(t, StateCancelled.Terminal())
}
