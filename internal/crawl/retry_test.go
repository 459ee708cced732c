package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net error" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	assert.False(t, p.ShouldRetry(nil, 0))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 0))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 2), "retry budget spent")

	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))

	assert.True(t, p.ShouldRetry(timeoutErr{timeout: true}, 0))
	assert.False(t, p.ShouldRetry(timeoutErr{timeout: false}, 0))
}

func TestExponentialRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		// Jitter keeps the wait inside [window/2, window), window capped.
		assert.GreaterOrEqual(t, d, p.baseDelay/2)
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}
