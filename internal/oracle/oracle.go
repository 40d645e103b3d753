package oracle

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/ampscan/ampscan/internal/hash/sha256"
	"github.com/ampscan/ampscan/internal/scan"
)

var hasher = sha256.New()

// ValidateParam is the query argument appended to instrumented requests so
// the origin emits source annotation comments.
const ValidateParam = "ampscan_validate"

// Oracle fetches a URL, runs the sanitizer chain over the response markup,
// and caches the resulting report. It implements scan.Oracle.
type Oracle struct {
	cfg      Config
	fetcher  Fetcher
	renderer Renderer
	cache    scan.ReportCache
	blobs    scan.BlobStore
	clock    scan.Clock
	chain    []Sanitizer
	nonce    func() string
	logger   *zap.Logger
}

// Option customizes an Oracle.
type Option func(*Oracle)

// WithRenderer supplies a headless renderer used when Config.UseJS is set.
func WithRenderer(r Renderer) Option {
	return func(o *Oracle) { o.renderer = r }
}

// WithBlobStore enables markup snapshots of each validated page.
func WithBlobStore(b scan.BlobStore) Option {
	return func(o *Oracle) { o.blobs = b }
}

// WithNonce supplies a token generator; when set, requests carry the
// validate query argument so instrumented origins annotate their output.
func WithNonce(fn func() string) Option {
	return func(o *Oracle) { o.nonce = fn }
}

// WithChain replaces the default sanitizer chain.
func WithChain(chain []Sanitizer) Option {
	return func(o *Oracle) { o.chain = chain }
}

// New constructs an Oracle over the given fetcher and report cache.
func New(cfg Config, fetcher Fetcher, cache scan.ReportCache, clock scan.Clock, logger *zap.Logger, opts ...Option) *Oracle {
	cfg = cfg.Defaulted()
	o := &Oracle{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		clock:   clock,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.chain == nil {
		chain := DefaultChain()
		if cfg.CSSBudget > 0 {
			chain[2] = NewStyleSanitizer(cfg.CSSBudget)
		}
		o.chain = chain
	}
	return o
}

// Validate implements scan.Oracle. A cached report younger than
// Config.MaxAge is returned as-is with Revalidated unset; otherwise the URL
// is fetched, sanitized, snapshotted, and the fresh report cached.
func (o *Oracle) Validate(ctx context.Context, pageURL string) (scan.Report, error) {
	now := o.clock.Now()

	if o.cfg.MaxAge > 0 && o.cache != nil {
		cached, found, err := o.cache.Get(ctx, pageURL)
		if err != nil {
			o.logger.Warn("report cache read failed", zap.String("url", pageURL), zap.Error(err))
		} else if found && now.Sub(cached.FetchedAt) < o.cfg.MaxAge {
			cached.Revalidated = false
			return cached, nil
		}
	}

	page, err := o.retrieve(ctx, pageURL)
	if err != nil {
		return scan.Report{}, fmt.Errorf("retrieve %s: %w", pageURL, err)
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return scan.Report{}, &scan.FetchError{URL: pageURL, StatusCode: page.StatusCode}
	}

	doc, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return scan.Report{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	results := SanitizeDocument(doc, o.chain)

	report := scan.Report{
		URL:         pageURL,
		Results:     results,
		Revalidated: true,
		FetchedAt:   now,
	}

	if o.blobs != nil {
		uri, snapErr := o.snapshot(ctx, pageURL, doc)
		if snapErr != nil {
			o.logger.Warn("snapshot failed", zap.String("url", pageURL), zap.Error(snapErr))
		} else {
			report.SnapshotURI = uri
		}
	}

	if o.cache != nil {
		if err := o.cache.Put(ctx, report); err != nil {
			o.logger.Warn("report cache write failed", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return report, nil
}

func (o *Oracle) retrieve(ctx context.Context, pageURL string) (Page, error) {
	target := pageURL
	if o.nonce != nil {
		annotated, err := withValidateParam(pageURL, o.nonce())
		if err != nil {
			return Page{}, err
		}
		target = annotated
	}
	if o.cfg.UseJS && o.renderer != nil {
		return o.renderer.Render(ctx, target)
	}
	return o.fetcher.Fetch(ctx, target)
}

// snapshot serializes the sanitized document and stores it under a path
// derived from the URL and fetch time.
func (o *Oracle) snapshot(ctx context.Context, pageURL string, doc *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	digest := hasher.Hash([]byte(pageURL))
	path := fmt.Sprintf("snapshots/%s/%d.html", digest[:16], o.clock.Now().Unix())
	return o.blobs.PutObject(ctx, path, "text/html; charset=utf-8", &buf)
}

func withValidateParam(pageURL, token string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := parsed.Query()
	q.Set(ValidateParam, token)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
