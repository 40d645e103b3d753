package nonce

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	g := New([]byte("secret"), newTestClock(), time.Hour)

	token := g.Generate()
	if !strings.Contains(token, ".") {
		t.Fatalf("malformed token %q", token)
	}
	if !g.Verify(token) {
		t.Fatal("freshly issued token must verify")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	g := New([]byte("secret"), clock, time.Hour)

	token := g.Generate()
	clock.Advance(time.Hour)
	if g.Verify(token) {
		t.Fatal("token must expire at exactly the TTL")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	g := New([]byte("secret"), clock, time.Hour)
	token := g.Generate()

	cases := map[string]string{
		"empty":          "",
		"no separator":   strings.ReplaceAll(token, ".", ""),
		"bad expiry":     "soon." + strings.SplitN(token, ".", 2)[1],
		"bad signature":  strings.SplitN(token, ".", 2)[0] + ".deadbeef",
		"future forgery": "99999999999.deadbeef",
	}
	for name, tok := range cases {
		if g.Verify(tok) {
			t.Fatalf("%s token must not verify: %q", name, tok)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	issuer := New([]byte("secret-a"), clock, time.Hour)
	verifier := New([]byte("secret-b"), clock, time.Hour)

	if verifier.Verify(issuer.Generate()) {
		t.Fatal("token signed with another secret must not verify")
	}
}
