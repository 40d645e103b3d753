package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollyFetcherFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html><body>ok</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher, err := NewCollyFetcher(Config{}, zap.NewNop())
	require.NoError(t, err)

	page, err := fetcher.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "ok")
	require.Equal(t, "text/html; charset=utf-8", page.Headers.Get("Content-Type"))
}

func TestCollyFetcherPreservesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetcher, err := NewCollyFetcher(Config{}, zap.NewNop())
	require.NoError(t, err)

	page, err := fetcher.Fetch(context.Background(), srv.URL+"/down")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
}

func TestCollyFetcherRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	fetcher, err := NewCollyFetcher(Config{}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		page, ferr := fetcher.Fetch(context.Background(), srv.URL+"/")
		require.NoError(t, ferr)
		require.Equal(t, http.StatusOK, page.StatusCode)
	}
	require.Equal(t, 2, hits)
}
