package sink

import (
	"context"
	"sync"
)

// MemoryStore keeps chunks in process memory, for tests and the one-shot CLI.
type MemoryStore struct {
	mu     sync.Mutex
	chunks map[string][]Chunk // keyed by URL
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string][]Chunk)}
}

// SaveChunks implements Store. Chunks for an already-stored URL are replaced.
func (m *MemoryStore) SaveChunks(_ context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[chunks[0].URL] = append([]Chunk(nil), chunks...)
	return nil
}

// Chunks returns the stored chunks for url.
func (m *MemoryStore) Chunks(url string) []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Chunk(nil), m.chunks[url]...)
}

// URLs returns every stored URL.
func (m *MemoryStore) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, 0, len(m.chunks))
	for u := range m.chunks {
		urls = append(urls, u)
	}
	return urls
}
