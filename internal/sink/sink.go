// Package sink chunks fetched page content and persists it to a chunk store.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/hash/sha256"
	"github.com/agentx-ai/steercrawl/internal/telemetry"
)

// Chunk is one unit of stored page content.
type Chunk struct {
	JobID    string
	URL      string
	Title    string
	Index    int
	Total    int
	Content  string
	Digest   string
	StoredAt time.Time
}

// Store persists chunks. Re-storing the same URL replaces its prior chunks,
// which keeps storage idempotent per URL.
type Store interface {
	SaveChunks(ctx context.Context, chunks []Chunk) error
}

// Config controls how page content is split.
type Config struct {
	ChunkSize    int // words per chunk
	ChunkOverlap int // words repeated between adjacent chunks
}

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 50
)

// Sink implements crawl.ContentSink.
type Sink struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New builds a Sink over the given store.
func New(store Store, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	return &Sink{store: store, cfg: cfg, logger: logger}
}

// Store implements crawl.ContentSink: split the page into chunks, persist
// them, and return the chunk count.
func (s *Sink) Store(ctx context.Context, jobID string, page crawl.Page) (int, error) {
	parts := split(page.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(parts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			JobID:    jobID,
			URL:      page.URL,
			Title:    page.Title,
			Index:    i,
			Total:    len(parts),
			Content:  part,
			Digest:   sha256.Digest([]byte(part)),
			StoredAt: now,
		})
	}
	if err := s.store.SaveChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("save %d chunks for %s: %w", len(chunks), page.URL, err)
	}
	telemetry.CountChunks(len(chunks))
	s.logger.Debug("page content stored",
		zap.String("job_id", jobID),
		zap.String("url", page.URL),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// split divides content into word-based chunks of size words, with overlap
// words carried between adjacent chunks.
func split(content string, size, overlap int) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	step := size - overlap
	var parts []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return parts
}
