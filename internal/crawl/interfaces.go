package crawl

import (
	"context"
	"time"
)

// Fetcher retrieves a URL's raw content.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor parses fetched HTML into a Page (title, text content, links).
type Extractor interface {
	Extract(baseURL string, body []byte) (Page, error)
}

// LinkFilter scores a candidate link against the job intent.
type LinkFilter interface {
	Score(ctx context.Context, link Link, pageURL, intent string) LinkDecision
}

// RobotsPolicy answers whether a URL may be fetched for the given agent.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL, userAgent string) bool
}

// RateLimiter enforces per-domain politeness delays.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// ContentSink chunks and persists fetched content, returning the chunk count.
type ContentSink interface {
	Store(ctx context.Context, jobID string, page Page) (int, error)
}

// Steerer mediates escalated link decisions. Await blocks until a human
// verdict arrives, the deadline passes (reject), or ctx ends.
type Steerer interface {
	Await(ctx context.Context, req SteeringRequest) (approved bool, err error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
