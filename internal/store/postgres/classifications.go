package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ampscan/ampscan/internal/scan"
)

// ClassificationStore persists moderation records in the validation_errors
// table:
//
//	CREATE TABLE validation_errors (
//	    slug       TEXT PRIMARY KEY,
//	    status     TEXT NOT NULL,
//	    forced     BOOLEAN NOT NULL DEFAULT FALSE,
//	    first_seen TIMESTAMPTZ NOT NULL
//	);
type ClassificationStore struct {
	pool  Pool
	clock scan.Clock
}

// NewClassificationStore constructs a store over an existing pool.
func NewClassificationStore(pool Pool, clock scan.Clock) *ClassificationStore {
	return &ClassificationStore{pool: pool, clock: clock}
}

// Get fetches the classification for a slug.
func (s *ClassificationStore) Get(ctx context.Context, slug string) (scan.Classification, bool, error) {
	var c scan.Classification
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status, forced FROM validation_errors WHERE slug = $1`, slug,
	).Scan(&status, &c.Forced)
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Classification{}, false, nil
	}
	if err != nil {
		return scan.Classification{}, false, fmt.Errorf("get classification %s: %w", slug, err)
	}
	c.Status = scan.AcceptanceStatus(status)
	return c, true, nil
}

// Put upserts the classification for a slug, preserving first_seen.
func (s *ClassificationStore) Put(ctx context.Context, slug string, c scan.Classification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO validation_errors (slug, status, forced, first_seen)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (slug) DO UPDATE
		 SET status = EXCLUDED.status, forced = EXCLUDED.forced`,
		slug, string(c.Status), c.Forced, s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("put classification %s: %w", slug, err)
	}
	return nil
}

// Reset deletes all classification rows and returns how many were removed.
func (s *ClassificationStore) Reset(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM validation_errors`)
	if err != nil {
		return 0, fmt.Errorf("reset classifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
