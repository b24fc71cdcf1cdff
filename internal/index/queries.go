package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgQuerier implements Querier over a pgxpool.Pool. The pool must have
// pgvector types registered on each connection, as app.setupDBPool does
// in its AfterConnect hook.
type PgQuerier struct {
	pool *pgxpool.Pool
}

// NewPgQuerier creates a PgQuerier.
func NewPgQuerier(pool *pgxpool.Pool) *PgQuerier {
	return &PgQuerier{pool: pool}
}

// SearchDocuments runs a cosine-distance nearest-neighbour query.
// Similarity is reported as 1 - distance, highest first.
func (q *PgQuerier) SearchDocuments(ctx context.Context, embedding pgvector.Vector, topK int32) ([]DocumentRow, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		ORDER BY embedding <=> $1
		LIMIT $2`,
		embedding, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var row DocumentRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return out, nil
}

// UpsertDocument inserts or replaces a document by ID.
func (q *PgQuerier) UpsertDocument(ctx context.Context, row DocumentRow) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		row.ID, row.Content, row.Embedding, row.Metadata, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

// CountDocuments returns the total document count.
func (q *PgQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
