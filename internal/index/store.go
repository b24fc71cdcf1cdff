// Package index provides the unstructured retrieval backend: semantic
// search over a pgvector-backed documents table.
//
// The serving pipeline only reads from the index; document ingestion is an
// offline concern exposed here as a minimal Add/Count surface for
// administration.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/ragline/ragline/internal/log"
)

// VectorDimension is the embedding width of the documents schema. The
// embedder must be configured to produce vectors of this size.
const VectorDimension = 768

// searchTimeout bounds one embed-and-search round trip.
const searchTimeout = 10 * time.Second

// Document is one indexed text unit.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result pairs a document with its similarity to the query.
type Result struct {
	Document   Document
	Similarity float64
}

// Querier defines the database operations the store needs. The interface
// is consumer-defined so tests can substitute a mock; the pgx-backed
// implementation lives in queries.go.
type Querier interface {
	// SearchDocuments returns the topK nearest documents by cosine distance.
	SearchDocuments(ctx context.Context, embedding pgvector.Vector, topK int32) ([]DocumentRow, error)

	// UpsertDocument inserts or replaces a document.
	UpsertDocument(ctx context.Context, row DocumentRow) error

	// CountDocuments returns the total number of indexed documents.
	CountDocuments(ctx context.Context) (int64, error)
}

// DocumentRow is the raw database representation of a document.
type DocumentRow struct {
	ID         string
	Content    string
	Embedding  pgvector.Vector
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float64
}

// Store performs embedding generation and vector similarity search.
// It is safe for concurrent use.
type Store struct {
	querier  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		querier:  querier,
		embedder: embedder,
		logger:   logger.With("component", "index"),
	}
}

// Search embeds the query, runs a cosine similarity search and returns the
// matched document contents joined by newlines. No matches yields an empty
// string.
func (s *Store) Search(ctx context.Context, query string, topK int) (string, error) {
	results, err := s.SearchDocuments(ctx, query, topK)
	if err != nil {
		return "", err
	}

	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Document.Content)
	}
	return strings.Join(contents, "\n"), nil
}

// SearchDocuments is the structured variant of Search, returning scored
// documents for callers that need metadata.
func (s *Store) SearchDocuments(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.querier.SearchDocuments(ctx, embedding, int32(topK)) // #nosec G115 -- validated positive, config-bounded
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Document:   rowToDocument(row, s.logger),
			Similarity: row.Similarity,
		})
	}

	s.logger.Debug("vector search completed", "query_len", len(query), "topK", topK, "hits", len(results))
	return results, nil
}

// Add embeds and upserts a document.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document ID is empty")
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if err := s.querier.UpsertDocument(ctx, DocumentRow{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	}); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.querier.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(n), nil
}

// embed generates one embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// rowToDocument converts a database row to the business type. Malformed
// metadata degrades to an empty map.
func rowToDocument(row DocumentRow, logger log.Logger) Document {
	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			logger.Warn("failed to parse document metadata", "document_id", row.ID, "error", err)
		}
	}
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return Document{
		ID:        row.ID,
		Content:   row.Content,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt,
	}
}
