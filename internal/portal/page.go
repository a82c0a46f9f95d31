package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/failure"
)

const pollInterval = 250 * time.Millisecond

// Snapshot reads the page DOM and parses it.
func Snapshot(ctx context.Context, page browser.Page) (string, *goquery.Document, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return "", nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, fmt.Errorf("parse page: %w", err)
	}
	return html, doc, nil
}

// WaitReady polls the page until probe reports it ready, probe fails, or
// timeout elapses. Exceeding timeout is a retryable timeout.
func WaitReady(ctx context.Context, page browser.Page, url string, timeout time.Duration, probe func(*goquery.Document) (bool, error)) (string, *goquery.Document, error) {
	deadline := time.Now().Add(timeout)
	for {
		html, doc, err := Snapshot(ctx, page)
		if err != nil {
			return "", nil, err
		}
		ready, err := probe(doc)
		if err != nil {
			return "", nil, err
		}
		if ready {
			return html, doc, nil
		}
		if !time.Now().Before(deadline) {
			return "", nil, failure.Timeout(url, fmt.Errorf("page not ready after %s", timeout))
		}
		if err := sleep(ctx, min(pollInterval, time.Until(deadline))); err != nil {
			return "", nil, err
		}
	}
}

// HasAny reports whether any selector matches.
func HasAny(doc *goquery.Document, selectors ...string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

const (
	scrollStep = 300
	maxScrolls = 50
)

// Scroll walks the page down in steps so lazy-loaded results materialize,
// then returns to the top. Surfaces without script support are left alone.
func Scroll(ctx context.Context, page browser.Page, pause time.Duration) error {
	prevHeight, err := evalNumber(ctx, page, "document.body.scrollHeight")
	if errors.Is(err, browser.ErrScriptUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}

	position := 0
	for i := 0; i < maxScrolls; i++ {
		position += scrollStep
		if _, err := page.Evaluate(ctx, fmt.Sprintf("window.scrollTo(0, %d)", position)); err != nil {
			return err
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		height, err := evalNumber(ctx, page, "document.body.scrollHeight")
		if err != nil {
			return err
		}
		bottom, err := evalNumber(ctx, page, "window.pageYOffset + window.innerHeight")
		if err != nil {
			return err
		}
		if bottom < height-100 {
			continue
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		height, err = evalNumber(ctx, page, "document.body.scrollHeight")
		if err != nil {
			return err
		}
		if height == prevHeight {
			slog.Debug("reached bottom of results", "scrolls", i+1)
			break
		}
		prevHeight = height
	}
	_, err = page.Evaluate(ctx, "window.scrollTo(0, 0)")
	return err
}

func evalNumber(ctx context.Context, page browser.Page, script string) (float64, error) {
	v, err := page.Evaluate(ctx, script)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%s: unexpected result %T", script, v)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
