// Package ratelimit enforces a minimum inter-request delay per domain.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// Limiter hands out fetch tokens per domain. With a delay d, each domain
// admits one request every d; the first request on a fresh domain is not
// delayed. This is the only throttling point in the crawl pipeline.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

// New builds a Limiter with the given per-domain delay.
func New(delay time.Duration) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: delay,
	}
}

// Wait blocks until a token is available for the URL's domain or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[domain]
	if !ok {
		lim := rate.Inf
		if l.interval > 0 {
			lim = rate.Every(l.interval)
		}
		limiter = rate.NewLimiter(lim, 1)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}
