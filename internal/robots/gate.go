// Package robots enforces robots.txt directives with a shared per-host cache.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultTTL          = 30 * time.Minute
	maxRobotsBytes      = 1 << 20
)

type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Gate fetches and caches robots.txt per host and answers allow/deny for
// candidate URLs. One Gate is shared by all concurrent jobs; entries are
// replaced atomically (last writer wins) and refetched lazily once stale.
// A failed robots fetch is treated as allow, logged but never fatal.
type Gate struct {
	client *http.Client
	cache  sync.Map // host -> *cacheEntry
	ttl    time.Duration
	logger *zap.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithTTL overrides the ruleset cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClient overrides the HTTP client used to fetch robots.txt.
func WithClient(client *http.Client) Option {
	return func(g *Gate) {
		if client != nil {
			g.client = client
		}
	}
}

// NewGate builds a Gate.
func NewGate(logger *zap.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		client: &http.Client{Timeout: defaultFetchTimeout},
		ttl:    defaultTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allowed implements crawl.RobotsPolicy.
func (g *Gate) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	if g == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := g.load(ctx, parsed, userAgent)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (g *Gate) load(ctx context.Context, parsed *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := g.cache.Load(hostKey); ok {
		entry := cached.(*cacheEntry)
		if time.Since(entry.fetchedAt) < g.ttl {
			return entry.data, nil
		}
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	g.cache.Store(hostKey, &cacheEntry{data: data, fetchedAt: time.Now()})
	return data, nil
}

type allowAll struct{}

func (allowAll) Allowed(context.Context, string, string) bool { return true }

// AllowAll returns a policy that admits every URL, used when a job opts out
// of robots enforcement.
func AllowAll() crawl.RobotsPolicy { return allowAll{} }
