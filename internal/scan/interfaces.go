package scan

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors surfaced by the coordinator and URL provider.
var (
	// ErrLocked means another scan batch currently holds the crawl lock.
	ErrLocked = errors.New("another scan is already validating URLs")
	// ErrNoURLs means the provider found zero candidate URLs for the
	// current settings.
	ErrNoURLs = errors.New("no URLs matched the current template settings")
)

// Oracle validates a single URL and returns its report. Implementations may
// reuse a sufficiently fresh cached report, signalled via Report.Revalidated.
type Oracle interface {
	Validate(ctx context.Context, url string) (Report, error)
}

// Classifier resolves a raw validation error to its stable slug and current
// acceptance status.
type Classifier interface {
	Classify(ctx context.Context, verr ValidationError) (slug string, status AcceptanceStatus, err error)
}

// ClassificationStore persists moderation records keyed by error slug.
type ClassificationStore interface {
	Get(ctx context.Context, slug string) (Classification, bool, error)
	Put(ctx context.Context, slug string, c Classification) error
	Reset(ctx context.Context) (int, error)
}

// ReportCache persists per-URL validation reports. Staleness is checked by
// the caller against Report.FetchedAt.
type ReportCache interface {
	Get(ctx context.Context, url string) (Report, bool, error)
	Put(ctx context.Context, report Report) error
	Reset(ctx context.Context) (int, error)
}

// KV is a small key-value store with TTL semantics, backing the crawl lock,
// the cron offset and the last-batch summary. SetNX must only succeed when
// the key is absent or expired.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes per-URL validation events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
