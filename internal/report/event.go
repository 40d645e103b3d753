// Package report defines scan progress events and the console rendering
// used by the CLI.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageScanStart Stage = "SCAN_START"
	StageURLStart  Stage = "URL_START"
	StageURLDone   Stage = "URL_DONE"
	StageURLError  Stage = "URL_ERROR"
	StageScanDone  Stage = "SCAN_DONE"
)

// Event captures a single milestone of a validation scan.
type Event struct {
	// RunID identifies the scan run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the page being validated, for URL-scoped stages.
	URL string
	// PageType labels the URL (post type, taxonomy, or pseudo type).
	PageType string
	// Errors is the number of validation errors found on the page.
	Errors int
	// Unaccepted is how many of those errors are not accepted.
	Unaccepted int
	// Dur captures execution latency for URL completions.
	Dur time.Duration
	// Note carries low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScanStart, StageScanDone:
	case StageURLStart, StageURLDone, StageURLError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
