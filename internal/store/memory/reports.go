package memory

import (
	"context"
	"sync"

	"github.com/ampscan/ampscan/internal/scan"
)

// ReportCache keeps per-URL validation reports in a map.
type ReportCache struct {
	mu      sync.RWMutex
	reports map[string]scan.Report
}

// NewReportCache constructs an empty cache.
func NewReportCache() *ReportCache {
	return &ReportCache{reports: make(map[string]scan.Report)}
}

// Get fetches the stored report for a URL.
func (s *ReportCache) Get(_ context.Context, url string) (scan.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[url]
	return r, ok, nil
}

// Put stores the report keyed by its URL.
func (s *ReportCache) Put(_ context.Context, report scan.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.URL] = report
	return nil
}

// Reset deletes all reports and returns how many were removed.
func (s *ReportCache) Reset(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.reports)
	s.reports = make(map[string]scan.Report)
	return n, nil
}
