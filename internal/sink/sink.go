// Package sink implements the durable KV sink: the Postgres-backed store
// of record for Documents and their Chunks (§3 "Ownership", §6 "Durable KV
// sink chunk row"). Chunks are jointly held by the vector store and this
// sink; the Ingest Orchestrator (C11) writes both on every successful
// ingest and there is no repair protocol between them (§1 Non-goals:
// "transactional updates across indices").
//
// Grounded on TicoDavid-RAGbox.co's internal/repository/chunk.go (pgxpool,
// batched inserts, raw SQL, no ORM) and the original_source
// database_service.py's save_chunks_to_postgres upsert-by-id statement.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cortexkb/retrieval-engine/internal/model"
)

// ChunkRow is the persisted shape of one chunk row (§6 "Durable KV sink
// chunk row").
type ChunkRow struct {
	ID          string
	DocumentID  string
	ChunkIndex  int
	Content     string
	AccessLevel int
	CharCount   int
	Metadata    model.Metadata
	CreatedAt   time.Time
}

// Sink is the durable KV sink abstraction the Ingest Orchestrator depends
// on for document/chunk bookkeeping.
type Sink interface {
	// UpsertDocument inserts or updates a document row, transitioning its
	// status (§3 "A document's status transitions monotonically except on
	// reprocessing, which first resets to PROCESSING").
	UpsertDocument(ctx context.Context, doc model.Document) error
	// GetDocument fetches the canonical document row, ok=false if absent.
	GetDocument(ctx context.Context, docID string) (model.Document, bool, error)
	// UpsertChunks bulk-inserts or replaces chunk rows, upserting on id.
	UpsertChunks(ctx context.Context, rows []ChunkRow) error
	// DeleteDocumentChunks removes every chunk row belonging to docID.
	DeleteDocumentChunks(ctx context.Context, docID string) error
	// Close releases the underlying connection pool.
	Close()
}

// PostgresSink is the production Sink.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// Open connects a PostgresSink to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: connect: %w", err)
	}
	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a PostgresSink around an already-opened pool, useful
// for tests that share a pool across multiple collaborators.
func NewWithPool(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			access_level INTEGER NOT NULL,
			status TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			access_level INTEGER NOT NULL,
			char_count INTEGER NOT NULL,
			metadata JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks(document_id);
	`)
	if err != nil {
		return fmt.Errorf("sink: ensure schema: %w", err)
	}
	return nil
}

// UpsertDocument implements Sink.
func (s *PostgresSink) UpsertDocument(ctx context.Context, doc model.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, access_level, status, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			access_level = EXCLUDED.access_level,
			status = EXCLUDED.status,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at
	`, doc.ID, doc.Title, doc.AccessLevel, string(doc.Status), doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sink: upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument implements Sink.
func (s *PostgresSink) GetDocument(ctx context.Context, docID string) (model.Document, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, access_level, status, chunk_count, created_at, updated_at
		FROM documents WHERE id = $1
	`, docID)
	var doc model.Document
	var status string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.AccessLevel, &status, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return model.Document{}, false, nil
		}
		return model.Document{}, false, fmt.Errorf("sink: get document %s: %w", docID, err)
	}
	doc.Status = model.DocumentStatus(status)
	return doc, true, nil
}

// UpsertChunks implements Sink, batching inserts via pgx.Batch the way
// TicoDavid-RAGbox.co's ChunkRepo.BulkInsert does.
func (s *PostgresSink) UpsertChunks(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		metaJSON, err := json.Marshal(flattenMetadata(r.Metadata))
		if err != nil {
			return fmt.Errorf("sink: marshal metadata for chunk %s: %w", r.ID, err)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, content, access_level, char_count, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				access_level = EXCLUDED.access_level,
				char_count = EXCLUDED.char_count,
				metadata = EXCLUDED.metadata
		`, r.ID, r.DocumentID, r.ChunkIndex, r.Content, r.AccessLevel, r.CharCount, metaJSON, r.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("sink: upsert chunk %d (%s): %w", i, rows[i].ID, err)
		}
	}
	return nil
}

// DeleteDocumentChunks implements Sink. Used both for reprocessing and for
// the ingest orchestrator's compensating delete on a failed pipeline.
func (s *PostgresSink) DeleteDocumentChunks(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("sink: delete chunks for document %s: %w", docID, err)
	}
	return nil
}

// Close implements Sink.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

// flattenMetadata renders a Metadata map to its persisted string form (§3
// "list-valued fields serialized as comma-joined strings for stores that
// disallow arrays"); Postgres's JSONB could hold arrays natively, but the
// sink keeps the same flattened scalar-map shape the vector store requires
// so the two stores never disagree on a chunk's metadata representation.
func flattenMetadata(m model.Metadata) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}
