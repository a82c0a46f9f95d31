package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/baxromumarov/portal-scraper/internal/failure"
)

// Playwright drives a real Chromium/Chrome through playwright-go. All pages
// share one stealth-patched context.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
}

func Launch(ctx context.Context, opts Options) (*Playwright, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
	}
	if opts.Channel != "" {
		launch.Channel = playwright.String(opts.Channel)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}
	locale := opts.Locale
	if locale == "" {
		locale = "en-US"
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(userAgent),
		Locale:            playwright.String(locale),
		TimezoneId:        playwright.String("America/New_York"),
		Viewport:          &playwright.Size{Width: 1366, Height: 768},
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreHTTPSErrors),
		ExtraHttpHeaders:  extraHeaders,
	}
	if p := opts.Proxy; p != nil {
		ctxOpts.Proxy = &playwright.Proxy{Server: p.Server}
		if p.Username != "" {
			ctxOpts.Proxy.Username = playwright.String(p.Username)
		}
		if p.Password != "" {
			ctxOpts.Proxy.Password = playwright.String(p.Password)
		}
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript(userAgent))}); err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("add stealth script: %w", err)
	}

	slog.Info("browser launched", "driver", "playwright", "headless", opts.Headless, "channel", opts.Channel)
	return &Playwright{pw: pw, browser: browser, context: bctx}, nil
}

func (b *Playwright) OpenPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (b *Playwright) Close() error {
	var errs []error
	if err := b.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	resp, err := await(ctx, func() (playwright.Response, error) {
		return p.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, playwright.ErrTimeout) {
			return failure.Timeout(url, err)
		}
		return failure.New(failure.KindNavigation, url, err)
	}
	if resp == nil {
		return nil
	}
	return failure.FromStatus(url, resp.Status())
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) (any, error) {
	return await(ctx, func() (any, error) {
		return p.page.Evaluate(script)
	})
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	return await(ctx, p.page.Content)
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

// await runs a blocking driver call and returns early when ctx is done. The
// abandoned call finishes once the page is closed.
func await[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}
