// Package indeed scrapes job postings from indeed.com.
package indeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/config"
	"github.com/baxromumarov/portal-scraper/internal/extract"
	"github.com/baxromumarov/portal-scraper/internal/failure"
	"github.com/baxromumarov/portal-scraper/internal/model"
	"github.com/baxromumarov/portal-scraper/internal/observability"
	"github.com/baxromumarov/portal-scraper/internal/portal"
	"github.com/baxromumarov/portal-scraper/internal/ratelimit"
	"github.com/baxromumarov/portal-scraper/internal/urlutil"
)

const (
	Name        = "indeed"
	BaseURL     = "https://www.indeed.com"
	JobsPerPage = 10
)

type Adapter struct {
	browser  browser.Browser
	cfg      config.Scrape
	retrier  *ratelimit.Retrier
	chain    extract.Chain
	baseURL  string
	maxPages int
}

func New(deps portal.Deps) (portal.Adapter, error) {
	if deps.Browser == nil {
		return nil, errors.New("indeed: browser is required")
	}
	maxPages := deps.Scrape.MaxPages
	if maxPages < 1 {
		maxPages = 5
	}
	return &Adapter{
		browser:  deps.Browser,
		cfg:      deps.Scrape,
		retrier:  ratelimit.ForScrape(deps.Scrape, Name),
		chain:    Chain(),
		baseURL:  BaseURL,
		maxPages: maxPages,
	}, nil
}

// Register adds the adapter to r.
func Register(r portal.Registry) {
	r[Name] = New
}

// Chain is the extraction order for detail pages.
func Chain() extract.Chain {
	return extract.Chain{
		extract.JSONLD{},
		extract.State{Marker: initialDataMarker, Paths: statePaths},
		extract.Selector{Fields: detailSelectors},
	}
}

func (a *Adapter) Name() string { return Name }

// SearchURL is the results page for a query. page is zero-based.
func SearchURL(base, query, location string, page int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("l", location)
	q.Set("sort", "date")
	q.Set("start", strconv.Itoa(page*JobsPerPage))
	return base + "/jobs?" + q.Encode()
}

// ViewURL is the canonical detail URL for a job key.
func ViewURL(base, jobKey string) string {
	return base + "/viewjob?jk=" + url.QueryEscape(jobKey)
}

// JobKey extracts the jk parameter from a detail URL.
func JobKey(rawURL string) string {
	return urlutil.QueryParam(rawURL, "jk")
}

func (a *Adapter) DiscoverJobs(ctx context.Context, query, location string) (model.DiscoveryResult, error) {
	result := model.DiscoveryResult{Portal: Name, Query: query, Location: location}
	seen := make(map[string]struct{})

	page, err := a.browser.OpenPage(ctx)
	if err != nil {
		return result, &failure.Error{Kind: failure.KindDiscoveryFailed, Err: err}
	}
	defer page.Close()

	for n := 0; n < a.maxPages; n++ {
		serp := SearchURL(a.baseURL, query, location, n)
		var found []string
		err := a.retrier.Do(ctx, nil, func(ctx context.Context) error {
			var err error
			found, err = a.readResults(ctx, page, serp)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			observability.IncError(observability.ClassifyScrapeError(err), Name+"_discovery")
			if n == 0 {
				return result, &failure.Error{Kind: failure.KindDiscoveryFailed, URL: serp, Err: err}
			}
			slog.Warn("stopping pagination after failed results page", "portal", Name, "url", serp, "error", err)
			break
		}

		added := 0
		for _, u := range found {
			if result.Add(u, seen) {
				added++
			}
		}
		observability.AddJobsDiscovered(Name, added)
		slog.Debug("results page read", "portal", Name, "url", serp, "found", len(found), "new", added)
		if added == 0 {
			break
		}
	}
	return result, nil
}

func (a *Adapter) ScrapeJob(ctx context.Context, task *model.ScrapeTask) (extract.Outcome, error) {
	if err := validateDetailURL(task.URL); err != nil {
		return extract.Outcome{}, err
	}

	page, err := a.browser.OpenPage(ctx)
	if err != nil {
		return extract.Outcome{}, failure.New(failure.KindNavigation, task.URL, err)
	}
	defer page.Close()

	var out extract.Outcome
	err = a.retrier.Do(ctx, &task.Attempts, func(ctx context.Context) error {
		var err error
		out, err = a.scrapeOnce(ctx, page, task.URL)
		return err
	})
	if err != nil {
		return extract.Outcome{}, err
	}
	if out.Record.JobID == "" {
		out.Record.JobID = JobKey(task.URL)
	}
	return out, nil
}

func (a *Adapter) scrapeOnce(ctx context.Context, page browser.Page, rawURL string) (extract.Outcome, error) {
	if err := page.Navigate(ctx, rawURL, a.cfg.NavigationTimeout()); err != nil {
		return extract.Outcome{}, err
	}
	observability.IncPagesNavigated(Name)

	html, _, err := portal.WaitReady(ctx, page, rawURL, a.cfg.SelectorTimeout(), func(doc *goquery.Document) (bool, error) {
		if err := portal.DetectChallenge(rawURL, doc, detailContentSelector); err != nil {
			observability.IncBotDetection(Name)
			return false, err
		}
		return portal.HasAny(doc, detailReadySelectors...), nil
	})
	if err != nil {
		return extract.Outcome{}, err
	}

	content := &extract.Content{
		URL:    rawURL,
		Portal: Name,
		HTML:   html,
		State:  evaluateState(ctx, page),
	}
	return a.chain.Extract(content)
}

var initialDataMarker = regexp.MustCompile(`window\._initialData\s*=\s*`)

const initialDataScript = `(() => window._initialData ? JSON.stringify(window._initialData) : null)()`

// evaluateState asks the page for its hydration blob. Any failure leaves the
// state strategy to find the blob in the HTML instead.
func evaluateState(ctx context.Context, page browser.Page) json.RawMessage {
	v, err := page.Evaluate(ctx, initialDataScript)
	if err != nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func validateDetailURL(raw string) error {
	if !urlutil.IsHTTP(raw) {
		return &failure.Error{Kind: failure.KindNavigation, URL: raw, Permanent: true, Err: fmt.Errorf("unsupported url %q", raw)}
	}
	return nil
}
