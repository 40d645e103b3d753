// Package nonce issues and checks the expiring tokens that authenticate
// validate requests.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ampscan/ampscan/internal/scan"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

// Generator issues HMAC-signed tokens bound to an expiry time.
type Generator struct {
	secret []byte
	clock  scan.Clock
	ttl    time.Duration
}

// New returns a Generator over the given secret. A non-positive ttl falls
// back to DefaultTTL.
func New(secret []byte, clock scan.Clock, ttl time.Duration) *Generator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Generator{secret: secret, clock: clock, ttl: ttl}
}

// Generate returns a fresh token of the form "<expiry-unix>.<signature>".
func (g *Generator) Generate() string {
	expiry := g.clock.Now().Add(g.ttl).Unix()
	return fmt.Sprintf("%d.%s", expiry, g.sign(expiry))
}

// Verify reports whether the token is well formed, unexpired, and carries a
// valid signature.
func (g *Generator) Verify(token string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false
	}
	if g.clock.Now().Unix() >= expiry {
		return false
	}
	return hmac.Equal([]byte(parts[1]), []byte(g.sign(expiry)))
}

func (g *Generator) sign(expiry int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "validate:%d", expiry)
	return hex.EncodeToString(mac.Sum(nil))
}
