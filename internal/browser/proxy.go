package browser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/baxromumarov/portal-scraper/internal/config"
)

// Proxy is applied when the browser context is created.
type Proxy struct {
	Server   string
	Username string
	Password string
}

// URL renders the proxy with credentials embedded, for HTTP clients that
// take a single proxy URL.
func (p *Proxy) URL() (string, error) {
	u, err := url.Parse(p.Server)
	if err != nil {
		return "", fmt.Errorf("parse proxy server: %w", err)
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u.String(), nil
}

type proxyProvider func(config.Proxy) *Proxy

var proxyProviders = map[string]proxyProvider{
	"none": func(config.Proxy) *Proxy { return nil },
	"scrapeops": func(p config.Proxy) *Proxy {
		if p.ScrapeOpsKey == "" {
			slog.Warn("SCRAPEOPS_API_KEY not set, running without proxy")
			return nil
		}
		return &Proxy{Server: "http://proxy.scrapeops.io:5353", Username: "scrapeops", Password: p.ScrapeOpsKey}
	},
	"scraperapi": func(p config.Proxy) *Proxy {
		if p.ScraperAPIKey == "" {
			slog.Warn("SCRAPERAPI_API_KEY not set, running without proxy")
			return nil
		}
		return &Proxy{Server: "http://proxy-server.scraperapi.com:8001", Username: "scraperapi", Password: p.ScraperAPIKey}
	},
	"zenrows": func(p config.Proxy) *Proxy {
		if p.ZenRowsKey == "" {
			slog.Warn("ZENROWS_API_KEY not set, running without proxy")
			return nil
		}
		return &Proxy{Server: "http://api.zenrows.com:8001", Username: p.ZenRowsKey, Password: "premium_proxy=true&antibot=true"}
	},
	"generic": func(p config.Proxy) *Proxy {
		if p.Server == "" {
			slog.Warn("PROXY_SERVER not set, running without proxy")
			return nil
		}
		return &Proxy{Server: p.Server, Username: p.Username, Password: p.Password}
	},
}

// ResolveProxy picks the proxy for the configured provider. A provider
// without credentials yields no proxy; an unknown provider is an error.
func ResolveProxy(cfg config.Proxy) (*Proxy, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "none"
	}
	provider, ok := proxyProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown proxy provider %q", cfg.Provider)
	}
	p := provider(cfg)
	if p != nil {
		slog.Info("using proxy", "provider", name, "server", p.Server)
	}
	return p, nil
}
