package oracle

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/scan"
	storagemem "github.com/ampscan/ampscan/internal/storage/memory"
	storemem "github.com/ampscan/ampscan/internal/store/memory"
)

type stubFetcher struct {
	mu      sync.Mutex
	status  int
	body    string
	err     error
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, rawURL)
	if f.err != nil {
		return Page{}, f.err
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return Page{URL: rawURL, FinalURL: rawURL, StatusCode: status, Body: []byte(f.body)}, nil
}

type oracleClock struct {
	mu  sync.Mutex
	now time.Time
}

func newOracleClock() *oracleClock {
	return &oracleClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *oracleClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *oracleClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const validAMPPage = `<html amp><head><meta charset="utf-8"><link rel="canonical" href="https://example.com/"></head><body><p>hello</p></body></html>`

const invalidAMPPage = `<html amp><head><meta charset="utf-8"><link rel="canonical" href="https://example.com/"></head><body><script src="https://evil.example/x.js"></script></body></html>`

func TestValidateCleanPage(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: validAMPPage}
	o := New(Config{}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop())

	report, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.True(t, report.Revalidated)
	require.Equal(t, "https://example.com/", report.URL)
}

func TestValidateReportsSanitizedErrors(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: invalidAMPPage}
	o := New(Config{}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop())

	report, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, scan.CodeInvalidElement, report.Results[0].Error.Code)
}

func TestValidateNonSuccessStatusIsFetchError(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{status: 404, body: "gone"}
	o := New(Config{}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop())

	_, err := o.Validate(context.Background(), "https://example.com/missing")
	var ferr *scan.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, 404, ferr.StatusCode)
	require.Equal(t, "https://example.com/missing", ferr.URL)
}

func TestValidateReusesFreshCachedReport(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: validAMPPage}
	clock := newOracleClock()
	cache := storemem.NewReportCache()
	o := New(Config{MaxAge: time.Hour}, fetcher, cache, clock, zap.NewNop())

	first, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.True(t, first.Revalidated)

	clock.Advance(30 * time.Minute)
	second, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.False(t, second.Revalidated)
	require.Len(t, fetcher.fetched, 1)

	// Past MaxAge the page is fetched again.
	clock.Advance(31 * time.Minute)
	third, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.True(t, third.Revalidated)
	require.Len(t, fetcher.fetched, 2)
}

func TestValidateStoresSnapshot(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: validAMPPage}
	blobs := storagemem.New()
	o := New(Config{}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop(),
		WithBlobStore(blobs),
	)

	report, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.NotEmpty(t, report.SnapshotURI)
	require.Equal(t, 1, blobs.Len())
}

func TestValidateAppendsNonceParam(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: validAMPPage}
	o := New(Config{}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop(),
		WithNonce(func() string { return "token-123" }),
	)

	_, err := o.Validate(context.Background(), "https://example.com/?s=example")
	require.NoError(t, err)
	require.Len(t, fetcher.fetched, 1)

	fetched, err := url.Parse(fetcher.fetched[0])
	require.NoError(t, err)
	require.Equal(t, "token-123", fetched.Query().Get(ValidateParam))
	// Existing query arguments survive.
	require.Equal(t, "example", fetched.Query().Get("s"))
}

func TestValidateCSSBudgetOverride(t *testing.T) {
	t.Parallel()

	page := `<html amp><head><meta charset="utf-8"><link rel="canonical" href="/"></head><body><style>body{color:red;background:blue}</style></body></html>`
	fetcher := &stubFetcher{body: page}
	o := New(Config{CSSBudget: 5}, fetcher, storemem.NewReportCache(), newOracleClock(), zap.NewNop())

	report, err := o.Validate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, scan.CodeExcessiveCSS, report.Results[0].Error.Code)
}
