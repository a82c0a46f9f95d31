package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/failure"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/job", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><h1>ua=%s</h1></body></html>", r.UserAgent())
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openHTTPPage(t *testing.T) Page {
	t.Helper()
	b := NewHTTP(Options{UserAgent: "test-agent"})
	t.Cleanup(func() { _ = b.Close() })
	p, err := b.OpenPage(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestHTTPNavigateAndContent(t *testing.T) {
	srv := newTestServer(t)
	p := openHTTPPage(t)
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, srv.URL+"/job", 5*time.Second))
	html, err := p.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "ua=test-agent")

	_, err = p.Evaluate(ctx, "1+1")
	assert.ErrorIs(t, err, ErrScriptUnsupported)
}

func TestHTTPNavigateClassifiesFailures(t *testing.T) {
	srv := newTestServer(t)
	p := openHTTPPage(t)
	ctx := context.Background()

	cases := map[string]failure.Kind{
		"/gone":      failure.KindNotFound,
		"/busy":      failure.KindNavigation,
		"/forbidden": failure.KindBotDetected,
	}
	for path, kind := range cases {
		err := p.Navigate(ctx, srv.URL+path, 5*time.Second)
		assert.Equal(t, kind, failure.KindOf(err), path)
	}

	err := p.Navigate(ctx, srv.URL+"/slow", 100*time.Millisecond)
	assert.Equal(t, failure.KindTimeout, failure.KindOf(err))
	assert.True(t, failure.Retryable(err))

	err = p.Navigate(ctx, "::not a url", time.Second)
	assert.Equal(t, failure.KindNavigation, failure.KindOf(err))
	assert.False(t, failure.Retryable(err))
}

func TestHTTPNavigateCancelled(t *testing.T) {
	p := openHTTPPage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Navigate(ctx, "http://127.0.0.1:1/", time.Second), context.Canceled)
}

func TestHTTPNavigateCancelledInFlight(t *testing.T) {
	srv := newTestServer(t)
	p := openHTTPPage(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := p.Navigate(ctx, srv.URL+"/slow", 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveProxy(t *testing.T) {
	p, err := ResolveProxy(config.Proxy{Provider: "scrapeops", ScrapeOpsKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, &Proxy{Server: "http://proxy.scrapeops.io:5353", Username: "scrapeops", Password: "k"}, p)

	p, err = ResolveProxy(config.Proxy{Provider: "ZenRows", ZenRowsKey: "z"})
	require.NoError(t, err)
	assert.Equal(t, "z", p.Username)
	assert.Equal(t, "premium_proxy=true&antibot=true", p.Password)

	p, err = ResolveProxy(config.Proxy{Provider: "scraperapi"})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ResolveProxy(config.Proxy{Provider: "generic", Server: "http://10.0.0.1:3128", Username: "u"})
	require.NoError(t, err)
	u, err := p.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://u@10.0.0.1:3128", u)

	p, err = ResolveProxy(config.Proxy{})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ResolveProxy(config.Proxy{Provider: "tor"})
	assert.Error(t, err)
}

func TestStealthScriptPlatform(t *testing.T) {
	assert.Contains(t, stealthScript("Mozilla/5.0 (Windows NT 10.0)"), "'Win32'")
	assert.Contains(t, stealthScript("Mozilla/5.0 (Macintosh; Intel Mac OS X)"), "'MacIntel'")
	assert.Contains(t, stealthScript("Mozilla/5.0 (X11; Linux)"), "'Linux x86_64'")
	assert.Contains(t, userAgents, RandomUserAgent())
}
