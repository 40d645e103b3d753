// Package scan defines core types shared across the validation pipeline.
package scan

import (
	"fmt"
	"time"
)

// Fixed pseudo-types for URLs that are not tied to a post type or taxonomy.
const (
	TypeHome   = "home"
	TypeAuthor = "author"
	TypeDate   = "date"
	TypeSearch = "search"
)

// PageURL is one candidate URL to validate, tagged with the content or
// template category it represents (a post type slug, a taxonomy slug, or one
// of the fixed pseudo-types).
type PageURL struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// AcceptanceStatus is the moderation state of a validation error class.
type AcceptanceStatus string

// Acceptance states persisted per error slug.
const (
	StatusNew         AcceptanceStatus = "new"
	StatusNewAccepted AcceptanceStatus = "new_accepted"
	StatusAckAccepted AcceptanceStatus = "ack_accepted"
	StatusAckRejected AcceptanceStatus = "ack_rejected"
)

// Accepted reports whether errors in this state are kept out of the
// unaccepted count.
func (s AcceptanceStatus) Accepted() bool {
	return s == StatusNewAccepted || s == StatusAckAccepted
}

// ErrorSource attributes a validation error to the component that produced
// the offending markup.
type ErrorSource struct {
	Type string `json:"type"` // plugin, theme, or core
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// ValidationError is a single raw error emitted by the oracle for one page.
// Data carries the structural error fields (node name, attribute name, parent
// tag and so on) keyed by field name; volatile capture details such as byte
// offsets live there too and are excluded from slug hashing.
type ValidationError struct {
	Code    string         `json:"code"`
	Sources []ErrorSource  `json:"sources,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error codes produced by the sanitizer chain.
const (
	CodeInvalidElement        = "invalid_element"
	CodeInvalidAttribute      = "invalid_attribute"
	CodeInvalidProtocol       = "invalid_protocol"
	CodeMissingMandatoryTag   = "missing_mandatory_tag"
	CodeExcessiveCSS          = "excessive_css"
	CodeDuplicateUniqueTag    = "duplicate_unique_tag"
	CodeInvalidProcessingInst = "invalid_processing_instruction"
)

// Result pairs one validation error with whether the sanitizer chain stripped
// the offending markup from the document.
type Result struct {
	Error     ValidationError `json:"error"`
	Sanitized bool            `json:"sanitized"`
}

// Report is the per-URL validation outcome returned by the oracle.
type Report struct {
	URL         string    `json:"url"`
	Results     []Result  `json:"results"`
	Revalidated bool      `json:"revalidated"`
	FetchedAt   time.Time `json:"fetched_at"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
}

// Classification is the persisted moderation record for one error slug.
type Classification struct {
	Status AcceptanceStatus `json:"status"`
	Forced bool             `json:"forced"`
}

// TypeValidity counts valid versus total URLs for one URL type.
type TypeValidity struct {
	Valid int `json:"valid"`
	Total int `json:"total"`
}

// Counters accumulates batch-level validation state. TotalErrors and
// UnacceptedErrors count URLs, not error instances: each validated URL
// contributes at most one to either.
type Counters struct {
	TotalErrors      int                     `json:"total_errors"`
	UnacceptedErrors int                     `json:"unaccepted_errors"`
	NumberCrawled    int                     `json:"number_crawled"`
	ValidityByType   map[string]TypeValidity `json:"validity_by_type"`
}

// NewCounters returns a zeroed Counters with an initialized type map.
func NewCounters() *Counters {
	return &Counters{ValidityByType: make(map[string]TypeValidity)}
}

// Summary is the persisted result of one finished scan batch.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Counters   Counters  `json:"counters"`
}

// FetchError reports that the oracle could not retrieve or render a URL.
// StatusCode is zero for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying transport error, if any.
func (e *FetchError) Unwrap() error { return e.Err }
