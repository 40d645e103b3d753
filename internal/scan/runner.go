package scan

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/content"
)

// RunOptions parameterize a one-shot scan.
type RunOptions struct {
	// Limit caps URLs per content type.
	Limit int
	// Include is an authoritative allowlist of template keys. A non-empty
	// allowlist implies Force.
	Include []string
	// Force treats every template and post as supported.
	Force bool
	// OnURL, when set, observes each URL outcome as it happens.
	OnURL func(url, urlType string, report Report, err error)
}

// Runner performs full, lock-guarded scans on demand. Unlike the Scheduler
// it always starts at offset zero and covers up to Limit URLs per type in
// one pass.
type Runner struct {
	index      content.SiteIndex
	clock      Clock
	kv         KV
	coord      *Coordinator
	ids        IDGenerator
	newScanner func(runID string) *Scanner
	logger     *zap.Logger
}

// NewRunner constructs a Runner. newScanner must return a fresh Scanner per
// run so counters never leak across runs.
func NewRunner(
	index content.SiteIndex,
	clock Clock,
	kv KV,
	coord *Coordinator,
	ids IDGenerator,
	newScanner func(runID string) *Scanner,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		index:      index,
		clock:      clock,
		kv:         kv,
		coord:      coord,
		ids:        ids,
		newScanner: newScanner,
		logger:     logger,
	}
}

// CountURLs reports how many URLs a run with the given options would visit.
func (r *Runner) CountURLs(ctx context.Context, opts RunOptions) (int, error) {
	provider := r.provider(opts)
	return provider.CountURLsToValidate(ctx)
}

// Run enumerates the URL sample, validates every URL under the scan lock,
// and persists the resulting summary. It returns ErrNoURLs when the sample
// is empty and ErrLocked when another scan holds the lock.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	provider := r.provider(opts)

	urls, err := provider.GetURLs(ctx, 0)
	if err != nil {
		return Summary{}, err
	}
	if len(urls) == 0 {
		return Summary{}, ErrNoURLs
	}

	runID, err := r.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	scanner := r.newScanner(runID)
	started := r.clock.Now()

	err = r.coord.WithLock(ctx, func(ctx context.Context) error {
		for _, u := range urls {
			report, verr := scanner.ValidateAndStore(ctx, u.URL, u.Type)
			if opts.OnURL != nil {
				opts.OnURL(u.URL, u.Type, report, verr)
			}
			if verr != nil {
				r.logger.Warn("validate url failed",
					zap.String("url", u.URL),
					zap.String("type", u.Type),
					zap.Error(verr),
				)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: r.clock.Now(),
		Counters:   scanner.Counters(),
	}
	if err := r.storeSummary(ctx, summary); err != nil {
		r.logger.Warn("persist scan summary failed", zap.Error(err))
	}
	return summary, nil
}

func (r *Runner) provider(opts RunOptions) *URLProvider {
	force := opts.Force || len(opts.Include) > 0
	return NewURLProvider(r.index, r.clock, opts.Limit, opts.Include, force)
}

func (r *Runner) storeSummary(ctx context.Context, summary Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, SummaryKey, string(data), 0)
}
