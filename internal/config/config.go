// Package config loads scraper settings from .env, an optional YAML file and
// the environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string   `yaml:"log_level"`
	Scrape   Scrape   `yaml:"scrape"`
	Browser  Browser  `yaml:"browser"`
	Proxy    Proxy    `yaml:"proxy"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Server   Server   `yaml:"server"`
}

// Scrape holds the knobs the pipeline itself reads.
type Scrape struct {
	MaxConcurrentPages  int `yaml:"max_concurrent_pages"`
	MaxConcurrentSERP   int `yaml:"max_concurrent_serp"`
	MaxRetries          int `yaml:"max_retries"`
	RetryBaseDelayMS    int `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMS     int `yaml:"retry_max_delay_ms"`
	NavigationTimeoutMS int `yaml:"navigation_timeout_ms"`
	SelectorTimeoutMS   int `yaml:"selector_timeout_ms"`
	MinRequestSpacingMS int `yaml:"min_request_spacing_ms"`
	ScrollPauseMS       int `yaml:"scroll_pause_ms"`
	MaxPages            int `yaml:"max_pages"`
}

type Browser struct {
	Driver            string `yaml:"driver"`
	Headless          bool   `yaml:"headless"`
	Channel           string `yaml:"channel"`
	IgnoreHTTPSErrors bool   `yaml:"ignore_https_errors"`
	UserAgent         string `yaml:"user_agent"`
	Locale            string `yaml:"locale"`
	RespectRobotsTxt  bool   `yaml:"respect_robots_txt"`
}

type Proxy struct {
	Provider      string `yaml:"provider"`
	Server        string `yaml:"server"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ScrapeOpsKey  string `yaml:"scrapeops_api_key"`
	ScraperAPIKey string `yaml:"scraperapi_api_key"`
	ZenRowsKey    string `yaml:"zenrows_api_key"`
}

type Database struct {
	URL string `yaml:"url"`
}

type Redis struct {
	URL     string `yaml:"url"`
	TTLHour int    `yaml:"ttl_hours"`
}

type Server struct {
	Port     string   `yaml:"port"`
	Schedule string   `yaml:"schedule"`
	Searches []Search `yaml:"searches"`
	// RetentionDays prunes stored jobs older than this once a day. Zero
	// keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// Search is one scheduled (portal, query, location) run.
type Search struct {
	Portal   string `yaml:"portal"`
	Query    string `yaml:"query"`
	Location string `yaml:"location"`
}

const (
	DriverPlaywright = "playwright"
	DriverHTTP       = "http"
)

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scrape: Scrape{
			MaxConcurrentPages:  5,
			MaxConcurrentSERP:   1,
			MaxRetries:          3,
			RetryBaseDelayMS:    5000,
			RetryMaxDelayMS:     10000,
			NavigationTimeoutMS: 30000,
			SelectorTimeoutMS:   10000,
			MinRequestSpacingMS: 1000,
			ScrollPauseMS:       1000,
			MaxPages:            5,
		},
		Browser: Browser{
			Driver:            DriverPlaywright,
			Headless:          false,
			Channel:           "chrome",
			IgnoreHTTPSErrors: true,
			Locale:            "en-US",
		},
		Proxy: Proxy{Provider: "none"},
		Redis: Redis{TTLHour: 24 * 7},
		Server: Server{
			Port:          "8080",
			RetentionDays: 30,
		},
	}
}

// Load builds the configuration. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Proxy.Provider, "scrapeops") && cfg.Scrape.MaxConcurrentPages > 1 {
		slog.Info("scrapeops proxy selected, limiting concurrent pages to 1")
		cfg.Scrape.MaxConcurrentPages = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	ints := map[string]*int{
		"SCRAPER_MAX_CONCURRENT_PAGES":   &c.Scrape.MaxConcurrentPages,
		"SCRAPER_MAX_CONCURRENT_SERP":    &c.Scrape.MaxConcurrentSERP,
		"SCRAPER_MAX_RETRIES":            &c.Scrape.MaxRetries,
		"SCRAPER_RETRY_BASE_DELAY_MS":    &c.Scrape.RetryBaseDelayMS,
		"SCRAPER_RETRY_MAX_DELAY_MS":     &c.Scrape.RetryMaxDelayMS,
		"SCRAPER_NAVIGATION_TIMEOUT_MS":  &c.Scrape.NavigationTimeoutMS,
		"SCRAPER_SELECTOR_TIMEOUT_MS":    &c.Scrape.SelectorTimeoutMS,
		"SCRAPER_MIN_REQUEST_SPACING_MS": &c.Scrape.MinRequestSpacingMS,
		"SCRAPER_MAX_PAGES":              &c.Scrape.MaxPages,
		"SCRAPER_RETENTION_DAYS":         &c.Server.RetentionDays,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"SCRAPER_HEADLESS":            &c.Browser.Headless,
		"SCRAPER_IGNORE_HTTPS_ERRORS": &c.Browser.IgnoreHTTPSErrors,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", key, v)
		}
		*dst = b
	}

	strs := map[string]*string{
		"SCRAPER_LOG_LEVEL":  &c.LogLevel,
		"SCRAPER_BROWSER":    &c.Browser.Driver,
		"SCRAPER_USER_AGENT": &c.Browser.UserAgent,
		"SCRAPER_SCHEDULE":   &c.Server.Schedule,
		"DATABASE_URL":       &c.Database.URL,
		"REDIS_URL":          &c.Redis.URL,
		"PROXY_PROVIDER":     &c.Proxy.Provider,
		"PROXY_SERVER":       &c.Proxy.Server,
		"PROXY_USERNAME":     &c.Proxy.Username,
		"PROXY_PASSWORD":     &c.Proxy.Password,
		"SCRAPEOPS_API_KEY":  &c.Proxy.ScrapeOpsKey,
		"SCRAPERAPI_API_KEY": &c.Proxy.ScraperAPIKey,
		"ZENROWS_API_KEY":    &c.Proxy.ZenRowsKey,
		"PORT":               &c.Server.Port,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	s := c.Scrape
	if s.MaxConcurrentPages < 1 {
		errs = append(errs, errors.New("max_concurrent_pages must be >= 1"))
	}
	if s.MaxConcurrentSERP < 1 {
		errs = append(errs, errors.New("max_concurrent_serp must be >= 1"))
	}
	if s.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be >= 1"))
	}
	if s.NavigationTimeoutMS <= 0 {
		errs = append(errs, errors.New("navigation_timeout_ms must be > 0"))
	}
	if s.SelectorTimeoutMS <= 0 {
		errs = append(errs, errors.New("selector_timeout_ms must be > 0"))
	}
	if s.MinRequestSpacingMS < 0 {
		errs = append(errs, errors.New("min_request_spacing_ms must be >= 0"))
	}
	if s.RetryBaseDelayMS < 0 || s.RetryMaxDelayMS < s.RetryBaseDelayMS {
		errs = append(errs, errors.New("retry delays must satisfy 0 <= base <= max"))
	}
	if s.MaxPages < 1 {
		errs = append(errs, errors.New("max_pages must be >= 1"))
	}
	if c.Server.RetentionDays < 0 {
		errs = append(errs, errors.New("retention_days must be >= 0"))
	}
	switch c.Browser.Driver {
	case DriverPlaywright, DriverHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown browser driver %q", c.Browser.Driver))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a config log level to slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return l, nil
}

func (s Scrape) NavigationTimeout() time.Duration {
	return time.Duration(s.NavigationTimeoutMS) * time.Millisecond
}

func (s Scrape) SelectorTimeout() time.Duration {
	return time.Duration(s.SelectorTimeoutMS) * time.Millisecond
}

func (s Scrape) MinRequestSpacing() time.Duration {
	return time.Duration(s.MinRequestSpacingMS) * time.Millisecond
}

func (s Scrape) RetryBaseDelay() time.Duration {
	return time.Duration(s.RetryBaseDelayMS) * time.Millisecond
}

func (s Scrape) RetryMaxDelay() time.Duration {
	return time.Duration(s.RetryMaxDelayMS) * time.Millisecond
}

func (s Scrape) ScrollPause() time.Duration {
	return time.Duration(s.ScrollPauseMS) * time.Millisecond
}

func (r Redis) TTL() time.Duration {
	return time.Duration(r.TTLHour) * time.Hour
}

func (s Server) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}
