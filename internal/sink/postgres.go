package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore persists chunks in Postgres.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore connects a pool to the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool (used by tests).
func NewPostgresStoreWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SaveChunks implements Store. All chunks in a call belong to one URL; prior
// chunks for that URL are deleted in the same transaction so a re-crawl
// overwrites rather than duplicates.
func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	first := chunks[0]
	if _, err := tx.Exec(ctx,
		`DELETE FROM content_chunks WHERE job_id = $1 AND url = $2`,
		first.JobID, first.URL,
	); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO content_chunks (job_id, url, title, chunk_index, chunk_total, content, digest, stored_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.JobID, c.URL, c.Title, c.Index, c.Total, c.Content, c.Digest, c.StoredAt,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}
