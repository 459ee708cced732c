// Package frontier maintains the ordered set of candidate links for one job.
package frontier

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/agentx-ai/steercrawl/internal/crawl"
)

// Frontier is a FIFO queue of FrontierEntry values plus a set of normalized
// URLs already seen for the job (queued or visited). Safe for concurrent use:
// fetch workers insert discovered links while the coordinator pops.
type Frontier struct {
	mu       sync.Mutex
	queue    []crawl.FrontierEntry
	seen     map[string]struct{}
	maxDepth int
	order    int
}

// New builds a Frontier that discards entries beyond maxDepth at insertion.
func New(maxDepth int) *Frontier {
	return &Frontier{
		seen:     make(map[string]struct{}),
		maxDepth: maxDepth,
	}
}

// Admit normalizes a candidate and marks it seen if it is new and within the
// depth bound. The returned entry is not yet queued; callers decide (after
// scoring) whether to Enqueue it. A rejected candidate stays marked, so it is
// never scored twice.
func (f *Frontier) Admit(rawURL string, depth int, from string) (crawl.FrontierEntry, bool) {
	norm, err := Normalize(rawURL)
	if err != nil {
		return crawl.FrontierEntry{}, false
	}
	if depth > f.maxDepth {
		return crawl.FrontierEntry{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[norm]; dup {
		return crawl.FrontierEntry{}, false
	}
	f.seen[norm] = struct{}{}
	f.order++
	return crawl.FrontierEntry{
		URL:            norm,
		Depth:          depth,
		DiscoveredFrom: from,
		DiscoveryOrder: f.order,
	}, true
}

// Enqueue appends an admitted entry to the queue.
func (f *Frontier) Enqueue(entry crawl.FrontierEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, entry)
}

// Push admits and immediately enqueues a candidate. Returns the normalized
// URL and whether it was added.
func (f *Frontier) Push(rawURL string, depth int, from string) (string, bool) {
	entry, ok := f.Admit(rawURL, depth, from)
	if !ok {
		return "", false
	}
	f.Enqueue(entry)
	return entry.URL, true
}

// Pop removes the next entry in discovery order (breadth-first).
func (f *Frontier) Pop() (crawl.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return crawl.FrontierEntry{}, false
	}
	entry := f.queue[0]
	f.queue = f.queue[1:]
	return entry, true
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Seen reports whether the normalized form of rawURL was ever queued.
func (f *Frontier) Seen(rawURL string) bool {
	norm, err := Normalize(rawURL)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[norm]
	return ok
}

// Normalize standardizes a URL so the same resource dedups to one key. It
// lowercases scheme and host, strips default ports and fragments, sorts query
// parameters, and canonicalizes a bare trailing slash.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}
