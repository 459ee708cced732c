// Package progress defines the ordered event stream emitted by crawl jobs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the variant of an Event.
type Kind string

// Event kinds. Completed, Failed and Cancelled terminate a job's stream.
const (
	KindDiscovered     Kind = "discovered"
	KindCrawling       Kind = "crawling"
	KindSteeringNeeded Kind = "steering_needed"
	KindStored         Kind = "stored"
	KindCompleted      Kind = "completed"
	KindFailed         Kind = "failed"
	KindCancelled      Kind = "cancelled"
)

// Terminal reports whether the kind ends a job's stream.
func (k Kind) Terminal() bool {
	switch k {
	case KindCompleted, KindFailed, KindCancelled:
		return true
	}
	return false
}

// Event is one milestone in a job's progress. Fields are populated according
// to Kind; everything needed to follow the crawl is on the event itself, so
// observers never reconstruct internal state.
type Event struct {
	JobID string    `json:"job_id"`
	Kind  Kind      `json:"type"`
	TS    time.Time `json:"ts"`

	// discovered
	Links []string `json:"links,omitempty"`
	Count int      `json:"count,omitempty"`

	// crawling, stored
	URL      string  `json:"url,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Chunks   int     `json:"chunks,omitempty"`

	// steering_needed
	Link       string  `json:"link,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// completed, cancelled
	TotalPages  int           `json:"total_pages,omitempty"`
	TotalChunks int           `json:"total_chunks,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	// failed
	Error string `json:"error,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindDiscovered:
		if e.Count != len(e.Links) {
			return errors.New("discovered count must match links")
		}
	case KindCrawling:
		if e.URL == "" {
			return errors.New("crawling requires url")
		}
		if e.Progress < 0 || e.Progress > 1 {
			return errors.New("progress must be in [0,1]")
		}
	case KindStored:
		if e.URL == "" {
			return errors.New("stored requires url")
		}
	case KindSteeringNeeded:
		if e.Link == "" {
			return errors.New("steering_needed requires link")
		}
	case KindFailed:
		if e.Error == "" {
			return errors.New("failed requires error reason")
		}
	case KindCompleted, KindCancelled:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
