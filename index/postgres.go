package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/policynth/database"
	"github.com/fabfab/policynth/document"
)

// PostgresIndex stores one namespace's chunks in the shared policy_chunks table.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPostgresIndex(pool *pgxpool.Pool, namespace string) *PostgresIndex {
	return &PostgresIndex{pool: pool, namespace: namespace}
}

func (p *PostgresIndex) Clear(ctx context.Context) error {
	if p.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", ErrUnavailable)
	}
	if _, err := p.pool.Exec(ctx, "DELETE FROM policy_chunks WHERE namespace = $1", p.namespace); err != nil {
		return fmt.Errorf("%w: clear namespace: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, chunks []document.Chunk) error {
	if p.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", ErrUnavailable)
	}
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", ErrUnavailable, chunk.Index)
		}
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshal chunk %d metadata: %w", ErrUnavailable, chunk.Index, err)
		}
		batch.Queue(`
			INSERT INTO policy_chunks (namespace, chunk_index, section_type, heading, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (namespace, chunk_index) DO UPDATE
			SET section_type = EXCLUDED.section_type,
			    heading = EXCLUDED.heading,
			    content = EXCLUDED.content,
			    metadata = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding
		`, p.namespace, chunk.Index, chunk.Type(), chunk.Heading(), chunk.Text, string(meta), pgvector.NewVector(chunk.Embedding))
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, chunk := range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %w", ErrUnavailable, chunk.Index, err)
		}
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("%w: postgres pool is nil", ErrUnavailable)
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", ErrUnavailable)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT chunk_index, content, metadata, 1 - (embedding <=> $2::vector) AS similarity
		FROM policy_chunks
		WHERE namespace = $1
		ORDER BY embedding <=> $2::vector, chunk_index
		LIMIT $3
	`, p.namespace, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: query similar chunks: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var (
			hit  Hit
			meta []byte
		)
		if err := rows.Scan(&hit.Chunk.Index, &hit.Chunk.Text, &meta, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan similar chunk: %w", ErrUnavailable, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &hit.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("%w: decode chunk %d metadata: %w", ErrUnavailable, hit.Chunk.Index, err)
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return hits, nil
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	if p.pool == nil {
		return 0, fmt.Errorf("%w: postgres pool is nil", ErrUnavailable)
	}
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM policy_chunks WHERE namespace = $1", p.namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Close releases nothing; the pool belongs to the provider's owner.
func (p *PostgresIndex) Close() error {
	return nil
}

// PostgresProvider scopes a shared pool to one namespace per request.
type PostgresProvider struct {
	pool      *pgxpool.Pool
	dimension int

	once      sync.Once
	schemaErr error
}

func NewPostgresProvider(pool *pgxpool.Pool, dimension int) *PostgresProvider {
	return &PostgresProvider{pool: pool, dimension: dimension}
}

func (p *PostgresProvider) Open(ctx context.Context, namespace string) (Index, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	p.once.Do(func() {
		p.schemaErr = database.EnsureIndexSchema(ctx, p.pool, p.dimension)
	})
	if p.schemaErr != nil {
		return nil, fmt.Errorf("%w: ensure schema: %w", ErrUnavailable, p.schemaErr)
	}
	return NewPostgresIndex(p.pool, namespace), nil
}

var (
	_ Index    = (*PostgresIndex)(nil)
	_ Provider = (*PostgresProvider)(nil)
)
