// Package vectorstore defines the external ANN vector store abstraction
// (collaborator behind component C2's pool) and its two concrete
// backends: a gRPC Qdrant client (the production backend, grounded in
// intelligencedev-manifold's go-client usage) and an in-process
// coder/hnsw graph (the embedded/test backend, adapted from the teacher's
// internal/store/hnsw.go), the way the teacher's BM25Index interface has
// both a bleve and a sqlite implementation.
package vectorstore

import (
	"context"

	"github.com/cortexkb/retrieval-engine/internal/model"
)

// HNSWParams are the ANN index's graph parameters fixed at collection
// creation time, per the glossary: cosine space, ef_construction=200,
// ef_search=100, M=16.
var HNSWParams = struct {
	Metric        string
	EfConstruction int
	EfSearch      int
	M             int
}{
	Metric:         "cosine",
	EfConstruction: 200,
	EfSearch:       100,
	M:              16,
}

// VectorResult is one hit from a vector-store query, already carrying the
// chunk payload needed to build a SearchResult without a second round
// trip.
type VectorResult struct {
	ID         string
	Content    string
	Metadata   model.Metadata
	Similarity float64
}

// Store is the external ANN vector store abstraction. The pool (C2) hands
// out connections that implement this directly (Qdrant) or a
// connection-free singleton that also implements it (the embedded HNSW
// backend).
type Store interface {
	// Upsert writes or replaces chunks and their embeddings.
	Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	// Query returns the topK nearest chunks to vector whose
	// metadata.access_level <= maxAccessLevel, ordered by similarity
	// descending.
	Query(ctx context.Context, vector []float32, topK int, maxAccessLevel int) ([]VectorResult, error)
	// DeleteDocument removes every chunk belonging to docID.
	DeleteDocument(ctx context.Context, docID string) error
	// IterateChunks returns every chunk (content + metadata, no vectors)
	// with access_level <= maxAccessLevel, in a stable order, for the BM25
	// Indexer to build its corpus from (§4.12).
	IterateChunks(ctx context.Context, maxAccessLevel int) ([]model.Chunk, error)
	// Heartbeat validates the connection is alive.
	Heartbeat(ctx context.Context) error
	// Close releases resources.
	Close() error
}
