// Package classify maps raw validation errors to stable, content-addressed
// slugs and resolves their acceptance status against the persisted taxonomy.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/hash/sha256"
	"github.com/ampscan/ampscan/internal/scan"
)

var hasher = sha256.New()

// volatileFields are capture-time details excluded from slug hashing so that
// the same logical defect maps to the same slug across crawl runs.
var volatileFields = map[string]struct{}{
	"line":      {},
	"column":    {},
	"offset":    {},
	"timestamp": {},
}

// ForcePolicy reports whether site configuration auto-accepts all validation
// errors regardless of stored moderation state.
type ForcePolicy func() bool

// Classifier resolves errors against a ClassificationStore. Unknown slugs
// default to new and are persisted on first sighting.
type Classifier struct {
	store  scan.ClassificationStore
	forced ForcePolicy
	logger *zap.Logger
}

// New constructs a Classifier. A nil policy means never forced.
func New(store scan.ClassificationStore, forced ForcePolicy, logger *zap.Logger) *Classifier {
	if forced == nil {
		forced = func() bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{store: store, forced: forced, logger: logger}
}

// Classify returns the error's slug and its current acceptance status.
// A forced policy resolves every error to the accepted terminal state.
func (c *Classifier) Classify(ctx context.Context, verr scan.ValidationError) (string, scan.AcceptanceStatus, error) {
	slug := Slug(verr)

	stored, ok, err := c.store.Get(ctx, slug)
	if err != nil {
		return "", "", fmt.Errorf("lookup classification %s: %w", slug, err)
	}
	if !ok {
		stored = scan.Classification{Status: scan.StatusNew}
		if err := c.store.Put(ctx, slug, stored); err != nil {
			return "", "", fmt.Errorf("store classification %s: %w", slug, err)
		}
		c.logger.Debug("new validation error class",
			zap.String("slug", slug),
			zap.String("code", verr.Code),
		)
	}

	if c.forced() || stored.Forced {
		return slug, scan.StatusNewAccepted, nil
	}
	return slug, stored.Status, nil
}

// Slug computes the stable content hash for an error: SHA-256 over its code
// and canonically encoded structural fields, volatile fields excluded.
func Slug(verr scan.ValidationError) string {
	var b strings.Builder
	b.WriteString(verr.Code)
	b.WriteByte('\n')
	writeCanonical(&b, normalized(verr.Data))
	return hasher.Hash([]byte(b.String()))
}

func normalized(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, volatile := volatileFields[k]; volatile {
			continue
		}
		out[k] = v
	}
	return out
}

// writeCanonical renders a value deterministically: map keys sorted, nested
// values encoded recursively, scalars via encoding/json.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			b.WriteString(fmt.Sprintf("%v", val))
			return
		}
		b.Write(enc)
	}
}
