package oracle

import (
	"context"
	"net/http"
	"time"
)

// Page is the raw outcome of retrieving a URL, before sanitization.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	UsedJS     bool
}

// Fetcher retrieves a page over plain HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer retrieves a page with JavaScript executed.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// Config controls fetching and validation behavior.
type Config struct {
	UserAgent          string        `mapstructure:"user_agent"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	Concurrency        int           `mapstructure:"concurrency"`
	RateLimitPerDomain int           `mapstructure:"rate_limit_per_domain"`

	// MaxAge is how long a cached report stays fresh. Zero disables reuse.
	MaxAge time.Duration `mapstructure:"max_age"`

	// UseJS routes retrieval through the headless renderer when one is
	// configured.
	UseJS bool `mapstructure:"use_js"`

	// CSSBudget overrides the stylesheet byte cap when positive.
	CSSBudget int `mapstructure:"css_budget"`

	JSRenderTimeout        time.Duration `mapstructure:"js_render_timeout"`
	JSRenderMaxConcurrency int           `mapstructure:"js_render_max_concurrency"`
	JSRenderDomainQPS      float64       `mapstructure:"js_render_domain_qps"`
}

// Defaulted returns the config with zero values replaced by working defaults.
func (c Config) Defaulted() Config {
	if c.UserAgent == "" {
		c.UserAgent = "ampscan/1.0 (+https://github.com/ampscan/ampscan)"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RateLimitPerDomain <= 0 {
		c.RateLimitPerDomain = 4
	}
	if c.JSRenderTimeout <= 0 {
		c.JSRenderTimeout = 30 * time.Second
	}
	return c
}
