package oracle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher on top of the Colly collector.
type CollyFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg Config, logger *zap.Logger) (*CollyFetcher, error) {
	cfg = cfg.Defaulted()
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	delay := time.Second / time.Duration(maxInt(1, cfg.RateLimitPerDomain))
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
		Delay:       delay,
	}); err != nil {
		return nil, err
	}

	return &CollyFetcher{baseCollector: base, logger: logger}, nil
}

// Fetch retrieves a page via a clone of the base collector. Revalidation
// hits the same URL repeatedly, so revisits stay allowed.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true

	resultCh := make(chan fetchOutcome, 1)
	send := func(res fetchOutcome) {
		select {
		case resultCh <- res:
		default:
		}
	}

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		send(fetchOutcome{page: Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte{}, r.Body...),
		}})
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError. Keep the status
		// so callers can distinguish a 404 from a transport failure.
		if r != nil && r.StatusCode != 0 {
			send(fetchOutcome{page: Page{
				URL:        rawURL,
				FinalURL:   rawURL,
				StatusCode: r.StatusCode,
				Body:       append([]byte{}, r.Body...),
			}})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchOutcome{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return Page{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		return res.page, res.err
	default:
		return Page{}, errors.New("colly fetch produced no result")
	}
}

type fetchOutcome struct {
	page Page
	err  error
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
