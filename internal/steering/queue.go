// Package steering holds escalated link decisions awaiting a human verdict.
package steering

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/frontier"
	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// resolution carries the verdict for one pending request.
type resolution struct {
	approved bool
	timedOut bool
}

// pending is one outstanding steering request. resolved guards the race
// between an operator verdict and the deadline timer: the first resolution
// wins and any later attempt is a harmless no-op.
type pending struct {
	req      crawl.SteeringRequest
	resolved bool
	ch       chan resolution
}

// Queue mediates escalated decisions for a single job. At most one request is
// outstanding at a time: the coordinator blocks in Await until the request is
// resolved, so a second enqueue cannot happen while one is pending.
type Queue struct {
	mu      sync.Mutex
	pending *pending
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueue builds a Queue with the given timeout policy. The timeout bounds
// every escalated wait; on expiry the request resolves to reject, which keeps
// the job live when no operator ever answers.
func NewQueue(timeout time.Duration, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{timeout: timeout, logger: logger}
}

// Await implements crawl.Steerer. It registers req, then blocks until an
// operator verdict, the deadline, or ctx cancellation (treated as reject).
func (q *Queue) Await(ctx context.Context, req crawl.SteeringRequest) (bool, error) {
	p := &pending{req: req, ch: make(chan resolution, 1)}

	q.mu.Lock()
	q.pending = p
	q.mu.Unlock()

	wait := q.timeout
	if !req.Deadline.IsZero() {
		wait = time.Until(req.Deadline)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		if res.approved {
			telemetry.CountSteering("approved")
		} else {
			telemetry.CountSteering("rejected")
		}
		return res.approved, nil
	case <-timer.C:
		if !q.expire(p) {
			// An operator verdict won the race; honor it.
			res := <-p.ch
			return res.approved, nil
		}
		telemetry.CountSteering("timeout")
		q.logger.Warn("steering request timed out; rejecting link",
			zap.String("job_id", req.JobID), zap.String("link", req.Link))
		return false, nil
	case <-ctx.Done():
		if !q.expire(p) {
			<-p.ch
		}
		return false, ctx.Err()
	}
}

// Resolve applies an operator verdict to the outstanding request for link.
// Returns crawl.ErrNoPendingSteering when nothing is outstanding or the link
// does not match. If the deadline fired first, the request is already gone
// and the late verdict reports the same error without touching job state.
func (q *Queue) Resolve(link string, approved bool) error {
	norm, err := frontier.Normalize(link)
	if err != nil {
		norm = link
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.pending
	if p == nil || p.resolved {
		return crawl.ErrNoPendingSteering
	}
	if p.req.Link != norm && p.req.Link != link {
		return crawl.ErrNoPendingSteering
	}
	p.resolved = true
	q.pending = nil
	p.ch <- resolution{approved: approved}
	return nil
}

// Pending returns the outstanding request, if any.
func (q *Queue) Pending() (crawl.SteeringRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return crawl.SteeringRequest{}, false
	}
	return q.pending.req, true
}

// expire clears p if it is still the outstanding request, reporting whether
// this call performed the resolution. Safe against a concurrent Resolve:
// whichever marks resolved first wins.
func (q *Queue) expire(p *pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p.resolved {
		return false
	}
	p.resolved = true
	if q.pending == p {
		q.pending = nil
	}
	return true
}
