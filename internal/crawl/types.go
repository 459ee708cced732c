// Package crawl defines the core types and the coordinator for steered crawl jobs.
package crawl

import (
	"net/http"
	"time"
)

// JobState represents the lifecycle state of a crawl job.
type JobState string

// Job lifecycle states. Completed, Failed and Cancelled are terminal.
const (
	StateInitializing JobState = "initializing"
	StateDiscovering  JobState = "discovering"
	StateFiltering    JobState = "filtering"
	StateSteeringWait JobState = "steering_wait"
	StateFetching     JobState = "fetching"
	StateStoring      JobState = "storing"
	StateCompleted    JobState = "completed"
	StateFailed       JobState = "failed"
	StateCancelled    JobState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Job configuration bounds. Start rejects configs outside these with
// ErrInvalidConfig.
const (
	MinDepth = 1
	MaxDepth = 10
	MinPages = 1
	MaxPages = 1000
	MinDelay = 500 * time.Millisecond
	MaxDelay = 10 * time.Second
)

// JobConfig captures the per-job knobs requested by the caller.
type JobConfig struct {
	MaxDepth         int           `json:"max_depth"`
	MaxPages         int           `json:"max_pages"`
	Delay            time.Duration `json:"delay_between_requests"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	RespectRobots    bool          `json:"respect_robots"`
	UserAgent        string        `json:"user_agent"`
	FetchConcurrency int           `json:"fetch_concurrency"`
	SteeringTimeout  time.Duration `json:"steering_timeout"`
}

// Validate checks the config against the documented bounds.
func (c JobConfig) Validate() error {
	if c.MaxDepth < MinDepth || c.MaxDepth > MaxDepth {
		return invalidConfigf("max_depth %d outside [%d,%d]", c.MaxDepth, MinDepth, MaxDepth)
	}
	if c.MaxPages < MinPages || c.MaxPages > MaxPages {
		return invalidConfigf("max_pages %d outside [%d,%d]", c.MaxPages, MinPages, MaxPages)
	}
	if c.Delay < MinDelay || c.Delay > MaxDelay {
		return invalidConfigf("delay %s outside [%s,%s]", c.Delay, MinDelay, MaxDelay)
	}
	if c.SteeringTimeout <= 0 {
		return invalidConfigf("steering_timeout must be positive")
	}
	return nil
}

// JobCounters tracks per-job progress totals.
type JobCounters struct {
	PagesVisited int `json:"pages_visited"`
	ChunksStored int `json:"chunks_stored"`
}

// Job is the metadata for one steered crawl. A single Coordinator owns a Job
// for its whole lifetime.
type Job struct {
	ID        string      `json:"id"`
	RootURL   string      `json:"root_url"`
	Intent    string      `json:"intent"`
	Config    JobConfig   `json:"config"`
	State     JobState    `json:"state"`
	Counters  JobCounters `json:"counters"`
	Created   time.Time   `json:"created_at"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
}

// FrontierEntry is one discovered-but-unvisited candidate link.
type FrontierEntry struct {
	URL            string `json:"url"`
	Depth          int    `json:"depth"`
	DiscoveredFrom string `json:"discovered_from,omitempty"`
	DiscoveryOrder int    `json:"discovery_order"`
}

// Verdict is the outcome of scoring a candidate link.
type Verdict string

// Link filter verdicts.
const (
	VerdictApprove  Verdict = "auto_approve"
	VerdictReject   Verdict = "auto_reject"
	VerdictEscalate Verdict = "escalate"
)

// LinkDecision records how a candidate link was judged against the intent.
// Immutable once produced.
type LinkDecision struct {
	URL        string  `json:"url"`
	Score      float64 `json:"intent_score"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Verdict    Verdict `json:"verdict"`
}

// SteeringRequest is an escalated link decision awaiting a human verdict.
type SteeringRequest struct {
	JobID      string    `json:"job_id"`
	Link       string    `json:"link"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	Deadline   time.Time `json:"deadline"`
}

// FetchRequest captures everything needed to fetch a single URL.
type FetchRequest struct {
	JobID     string
	URL       string
	Depth     int
	UserAgent string
	Timeout   time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Link is an outgoing link found on a fetched page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Page is the parsed content of a fetched URL handed to the ContentSink.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Links   []Link `json:"links"`
}
