package browser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/baxromumarov/portal-scraper/internal/failure"
)

// HTTP is a script-less surface backed by colly. It serves pages whose data
// ships in the initial HTML and is the driver used where no browser is
// installed.
type HTTP struct {
	opts      Options
	userAgent string
	proxyURL  string
}

func NewHTTP(opts Options) *HTTP {
	h := &HTTP{opts: opts, userAgent: opts.UserAgent}
	if h.userAgent == "" {
		h.userAgent = RandomUserAgent()
	}
	if opts.Proxy != nil {
		u, err := opts.Proxy.URL()
		if err != nil {
			slog.Warn("ignoring proxy", "error", err)
		} else {
			h.proxyURL = u
		}
	}
	return h
}

func (h *HTTP) OpenPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpPage{browser: h}, nil
}

func (h *HTTP) Close() error { return nil }

type httpPage struct {
	browser *HTTP

	mu     sync.Mutex
	html   string
	closed bool
}

func (p *httpPage) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := url.Parse(rawURL)
	if err == nil && target.Host == "" {
		err = errors.New("missing host")
	}
	if err != nil {
		return &failure.Error{Kind: failure.KindNavigation, URL: rawURL, Permanent: true, Err: fmt.Errorf("malformed url: %w", err)}
	}

	c, err := p.browser.newCollector(ctx, timeout)
	if err != nil {
		return failure.New(failure.KindNavigation, rawURL, err)
	}

	status := 0
	var body []byte
	var reqErr error
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
			body = append([]byte(nil), r.Body...)
		}
		reqErr = err
	})

	if err := c.Request(http.MethodGet, target.String(), nil, nil, nil); err != nil && reqErr == nil {
		reqErr = err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := failure.FromStatus(rawURL, status); err != nil {
		return err
	}
	if reqErr != nil {
		var ne net.Error
		if errors.As(reqErr, &ne) && ne.Timeout() {
			return failure.Timeout(rawURL, reqErr)
		}
		return failure.New(failure.KindNavigation, rawURL, reqErr)
	}

	p.mu.Lock()
	p.html = string(body)
	p.mu.Unlock()
	return nil
}

func (p *httpPage) Evaluate(context.Context, string) (any, error) {
	return nil, ErrScriptUnsupported
}

func (p *httpPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", errors.New("page closed")
	}
	return p.html, nil
}

func (p *httpPage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.html = ""
	p.mu.Unlock()
	return nil
}

// newCollector builds a single-use collector whose requests are bound to ctx.
func (h *HTTP) newCollector(ctx context.Context, timeout time.Duration) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.UserAgent(h.userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.IgnoreRobotsTxt = !h.opts.RespectRobotsTxt
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(timeout)
	if h.opts.IgnoreHTTPSErrors {
		c.WithTransport(&http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via ignore_https_errors
		})
	}
	if h.proxyURL != "" {
		if err := c.SetProxy(h.proxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range extraHeaders {
			r.Headers.Set(k, v)
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	return c, nil
}
