package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ampscan/ampscan/internal/scan"
)

// ReportCache persists per-URL validation reports in the validated_urls
// table:
//
//	CREATE TABLE validated_urls (
//	    url        TEXT PRIMARY KEY,
//	    report     JSONB NOT NULL,
//	    fetched_at TIMESTAMPTZ NOT NULL
//	);
type ReportCache struct {
	pool Pool
}

// NewReportCache constructs a cache over an existing pool.
func NewReportCache(pool Pool) *ReportCache {
	return &ReportCache{pool: pool}
}

// Get fetches the stored report for a URL. Staleness is the caller's call.
func (s *ReportCache) Get(ctx context.Context, url string) (scan.Report, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM validated_urls WHERE url = $1`, url,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Report{}, false, nil
	}
	if err != nil {
		return scan.Report{}, false, fmt.Errorf("get report %s: %w", url, err)
	}
	var report scan.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return scan.Report{}, false, fmt.Errorf("decode report %s: %w", url, err)
	}
	return report, true, nil
}

// Put upserts the report keyed by its URL.
func (s *ReportCache) Put(ctx context.Context, report scan.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.URL, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO validated_urls (url, report, fetched_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO UPDATE
		 SET report = EXCLUDED.report, fetched_at = EXCLUDED.fetched_at`,
		report.URL, raw, report.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("put report %s: %w", report.URL, err)
	}
	return nil
}

// Reset deletes all stored reports and returns how many were removed.
func (s *ReportCache) Reset(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM validated_urls`)
	if err != nil {
		return 0, fmt.Errorf("reset reports: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
