package scan

import (
	"context"

	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/metrics"
)

// Scanner drives the oracle and classifier over URLs and accumulates batch
// counters. One Scanner instance is constructed per batch and owns its
// Counters; nothing is shared across batches.
type Scanner struct {
	oracle     Oracle
	classifier Classifier
	publisher  Publisher
	topic      string
	runID      string
	counters   *Counters
	logger     *zap.Logger
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

// WithPublisher attaches an event publisher for per-URL outcomes.
func WithPublisher(p Publisher, topic string) ScannerOption {
	return func(s *Scanner) {
		s.publisher = p
		s.topic = topic
	}
}

// WithRunID tags published events with a batch run ID.
func WithRunID(id string) ScannerOption {
	return func(s *Scanner) { s.runID = id }
}

// NewScanner constructs a Scanner with fresh counters.
func NewScanner(oracle Oracle, classifier Classifier, logger *zap.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		oracle:     oracle,
		classifier: classifier,
		counters:   NewCounters(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counters returns a snapshot of the accumulated batch counters.
func (s *Scanner) Counters() Counters {
	out := *s.counters
	out.ValidityByType = make(map[string]TypeValidity, len(s.counters.ValidityByType))
	for k, v := range s.counters.ValidityByType {
		out.ValidityByType[k] = v
	}
	return out
}

// ValidateAndStore validates one URL, classifies its errors and updates the
// batch counters. Oracle failures are propagated untouched and update
// nothing. TotalErrors and UnacceptedErrors increment at most once per URL
// regardless of how many error records the report carries. The call is not
// idempotent; callers must visit each URL once per batch.
func (s *Scanner) ValidateAndStore(ctx context.Context, url, urlType string) (Report, error) {
	report, err := s.oracle.Validate(ctx, url)
	if err != nil {
		return Report{}, err
	}

	unaccepted := 0
	for _, res := range report.Results {
		slug, status, cerr := s.classifier.Classify(ctx, res.Error)
		if cerr != nil {
			return Report{}, cerr
		}
		if !status.Accepted() {
			unaccepted++
		}
		metrics.ObserveError(string(status))
		s.logger.Debug("classified validation error",
			zap.String("url", url),
			zap.String("slug", slug),
			zap.String("status", string(status)),
		)
	}

	if len(report.Results) > 0 {
		s.counters.TotalErrors++
	}
	if unaccepted > 0 {
		s.counters.UnacceptedErrors++
	}
	s.counters.NumberCrawled++

	validity := s.counters.ValidityByType[urlType]
	validity.Total++
	if unaccepted == 0 {
		validity.Valid++
	}
	s.counters.ValidityByType[urlType] = validity
	metrics.ObserveURL(urlType, unaccepted == 0)

	s.publish(ctx, url, urlType, report, unaccepted)
	return report, nil
}

func (s *Scanner) publish(ctx context.Context, url, urlType string, report Report, unaccepted int) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":      s.runID,
		"url":         url,
		"type":        urlType,
		"errors":      len(report.Results),
		"unaccepted":  unaccepted,
		"revalidated": report.Revalidated,
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		// Event delivery is advisory; validation results are already stored.
		s.logger.Warn("publish validation event failed", zap.String("url", url), zap.Error(err))
	}
}
