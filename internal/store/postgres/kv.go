package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ampscan/ampscan/internal/scan"
)

// KV implements scan.KV over the kv_entries table:
//
//	CREATE TABLE kv_entries (
//	    key        TEXT PRIMARY KEY,
//	    value      TEXT NOT NULL,
//	    expires_at TIMESTAMPTZ
//	);
//
// A NULL expires_at means the entry never expires.
type KV struct {
	pool  Pool
	clock scan.Clock
}

// NewKV constructs a KV over an existing pool.
func NewKV(pool Pool, clock scan.Clock) *KV {
	return &KV{pool: pool, clock: clock}
}

// Get returns the live value for key, treating expired rows as absent.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	if expiresAt != nil && !s.clock.Now().Before(*expiresAt) {
		return "", false, nil
	}
	return value, true, nil
}

// Set stores value under key, replacing any existing row.
func (s *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.expiry(ttl),
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// SetNX stores value only when no live row exists for key. The upsert claims
// expired rows in the same statement, so acquisition is a single round trip.
func (s *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		 WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= $4`,
		key, value, s.expiry(ttl), s.clock.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes key.
func (s *KV) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *KV) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.clock.Now().Add(ttl)
	return &t
}
