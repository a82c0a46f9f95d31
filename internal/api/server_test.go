package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/model"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/runner"
	"github.com/baxromumarov/portal-scraper/internal/sink"
)

type stubAdapter struct{}

func (stubAdapter) Name() string { return "stub" }

func (stubAdapter) DiscoverJobs(_ context.Context, query, location string) (model.DiscoveryResult, error) {
	return model.DiscoveryResult{Portal: "stub", Query: query, Location: location, URLs: []string{"https://stub/1", "https://stub/2"}}, nil
}

func (stubAdapter) ScrapeJob(_ context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
	task.Attempts = 1
	return extract.Outcome{Status: extract.Success, Strategy: "jsonld", Record: model.JobRecord{URL: task.URL, Title: "Go"}}, nil
}

type fakeJobs struct{ portal string }

func (f *fakeJobs) ListJobs(_ context.Context, portal string, limit, offset int) ([]sink.StoredJob, error) {
	f.portal = portal
	return nil, nil
}

func newTestServer(t *testing.T, jobs JobStore) *httptest.Server {
	t.Helper()
	registry := portal.Registry{"stub": func(portal.Deps) (portal.Adapter, error) { return stubAdapter{}, nil }}
	r := runner.New(registry, portal.Deps{Scrape: config.Scrape{MaxConcurrentPages: 2, MaxConcurrentSERP: 1}}, nil)
	srv := httptest.NewServer(NewServer(context.Background(), r, jobs).Router())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndPortals(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/portals")
	require.NoError(t, err)
	var body struct {
		Items []string `json:"items"`
	}
	decode(t, resp, &body)
	assert.Equal(t, []string{"stub"}, body.Items)
}

func TestStartAndPollRun(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(`{"portal":"stub","query":"golang","location":"Remote"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started runner.Report
	decode(t, resp, &started)
	assert.Equal(t, "golang", started.Query)
	assert.Equal(t, "/runs/"+started.ID.String(), resp.Header.Get("Location"))

	var rep runner.Report
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/runs/" + started.ID.String())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&rep) != nil {
			return false
		}
		return rep.State.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, runner.StateDone, rep.State)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Len(t, rep.Results, 2)
}

func TestStartRunValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := map[string]string{
		"bad json":       `{`,
		"missing query":  `{"portal":"stub"}`,
		"unknown portal": `{"portal":"monster","query":"go"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetRunErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/runs/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/runs/6f1c1c2e-8d1e-4d55-9a43-0a4f7f6f7d10")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	resp, err := http.Get(newTestServer(t, nil).URL + "/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	jobs := &fakeJobs{}
	resp, err = http.Get(newTestServer(t, jobs).URL + "/jobs?portal=indeed&limit=5")
	require.NoError(t, err)
	var body struct {
		Items []sink.StoredJob `json:"items"`
		Limit int              `json:"limit"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "indeed", jobs.portal)
	assert.Equal(t, 5, body.Limit)
	assert.NotNil(t, body.Items)
}

func TestStats(t *testing.T) {
	resp, err := http.Get(newTestServer(t, nil).URL + "/stats")
	require.NoError(t, err)
	var body map[string]any
	decode(t, resp, &body)
	assert.Contains(t, body, "portals")
	assert.Contains(t, body, "errors_total")
}
