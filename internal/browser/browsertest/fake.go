// Package browsertest provides an instrumented in-memory browser.Browser.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/browser"
	"github.com/baxromumarov/portal-scraper/internal/failure"
)

// Response is what one navigation to a URL yields.
type Response struct {
	HTML   string
	Status int
	Err    error
}

// Browser serves canned pages. Responses for a URL are consumed in order;
// the last one repeats. Unknown URLs answer 404.
type Browser struct {
	// Latency is slept (context-aware) inside every Navigate.
	Latency time.Duration
	// Eval answers Page.Evaluate; nil means scripts are unsupported.
	Eval func(url, script string) (any, error)

	mu          sync.Mutex
	responses   map[string][]Response
	navigations map[string]int
	open        int
	maxOpen     int
	opened      int
	closed      int
}

func New() *Browser {
	return &Browser{
		responses:   map[string][]Response{},
		navigations: map[string]int{},
	}
}

// Page registers a page that always renders html.
func (b *Browser) Page(url, html string) *Browser {
	return b.Respond(url, Response{HTML: html})
}

// Respond queues responses for url.
func (b *Browser) Respond(url string, rs ...Response) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[url] = append(b.responses[url], rs...)
	return b
}

func (b *Browser) OpenPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.open++
	b.opened++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	b.mu.Unlock()
	return &page{b: b}, nil
}

func (b *Browser) Close() error { return nil }

// MaxOpen is the highest number of simultaneously open pages observed.
func (b *Browser) MaxOpen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxOpen
}

// Open is the number of pages currently open.
func (b *Browser) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Navigations counts Navigate calls for url.
func (b *Browser) Navigations(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navigations[url]
}

func (b *Browser) next(url string) Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations[url]++
	rs := b.responses[url]
	switch len(rs) {
	case 0:
		return Response{Status: 404}
	case 1:
		return rs[0]
	}
	b.responses[url] = rs[1:]
	return rs[0]
}

type page struct {
	b      *Browser
	url    string
	html   string
	closed bool
}

func (p *page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if p.closed {
		return errors.New("page closed")
	}
	if p.b.Latency > 0 {
		t := time.NewTimer(p.b.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r := p.b.next(url)
	p.url = url
	if r.Err != nil {
		return r.Err
	}
	if err := failure.FromStatus(url, r.Status); err != nil {
		return err
	}
	p.html = r.HTML
	return nil
}

func (p *page) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.b.Eval == nil {
		return nil, browser.ErrScriptUnsupported
	}
	return p.b.Eval(p.url, script)
}

func (p *page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.html, nil
}

func (p *page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.b.mu.Lock()
	p.b.open--
	p.b.closed++
	p.b.mu.Unlock()
	return nil
}
