package vectorstore

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	"github.com/cortexkb/retrieval-engine/internal/model"
)

// HNSWStore is the embedded, connection-free Store backend: an in-process
// coder/hnsw graph, adapted from the teacher's internal/store/hnsw.go
// (pure-Go HNSW, no CGO) but carrying chunk content and metadata alongside
// each vector so it can serve both Query and the BM25 Indexer's
// IterateChunks without a second store.
type HNSWStore struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64
	chunks  map[uint64]model.Chunk
	nextKey uint64
	closed  bool
}

// NewHNSWStore builds an embedded vector store at the fixed HNSW
// parameters in HNSWParams.
func NewHNSWStore(dimensions int) *HNSWStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = HNSWParams.M
	graph.EfSearch = HNSWParams.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:      graph,
		dimensions: dimensions,
		idMap:      make(map[string]uint64),
		chunks:     make(map[uint64]model.Chunk),
	}
}

// Upsert implements Store.
func (s *HNSWStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errDimensionMismatchCount(len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for i, c := range chunks {
		vec := vectors[i]
		if s.dimensions != 0 && len(vec) != s.dimensions {
			return errDimensionMismatch(s.dimensions, len(vec))
		}
		id := c.ID()
		if existingKey, exists := s.idMap[id]; exists {
			// Lazy deletion: orphan the old node rather than calling
			// graph.Delete, which mishandles removing the last node.
			delete(s.chunks, existingKey)
			delete(s.idMap, id)
		}
		key := s.nextKey
		s.nextKey++

		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)

		s.graph.Add(hnsw.MakeNode(key, normalized))
		s.idMap[id] = key
		s.chunks[key] = c
	}
	return nil
}

// Query implements Store. Because access filtering happens after the ANN
// search, it over-fetches by a constant factor so a realistic share of
// filtered-out results doesn't starve topK.
func (s *HNSWStore) Query(ctx context.Context, vector []float32, topK int, maxAccessLevel int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}
	if s.graph.Len() == 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(vector))
	copy(normalized, vector)
	normalizeInPlace(normalized)

	fetch := topK * 4
	if fetch < topK {
		fetch = topK
	}
	nodes := s.graph.Search(normalized, fetch)

	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		chunk, ok := s.chunks[node.Key]
		if !ok {
			continue
		}
		if chunk.AccessLevel > maxAccessLevel {
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, VectorResult{
			ID:         chunk.ID(),
			Content:    chunk.Content,
			Metadata:   chunk.Metadata,
			Similarity: 1 - float64(distance),
		})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

// DeleteDocument implements Store.
func (s *HNSWStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	prefix := docID + "_"
	for id, key := range s.idMap {
		if strings.HasPrefix(id, prefix) {
			delete(s.idMap, id)
			delete(s.chunks, key)
		}
	}
	return nil
}

// IterateChunks implements Store.
func (s *HNSWStore) IterateChunks(ctx context.Context, maxAccessLevel int) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}
	out := make([]model.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.AccessLevel <= maxAccessLevel {
			out = append(out, c)
		}
	}
	return out, nil
}

// Heartbeat implements Store; the embedded backend has no connection to
// validate beyond its own lifecycle state.
func (s *HNSWStore) Heartbeat(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

// Close implements Store.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Count returns the number of live (non-orphaned) chunks, for stats/tests.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

type dimensionError struct {
	expected, got int
	countMismatch bool
}

func (e *dimensionError) Error() string {
	if e.countMismatch {
		return "chunks/vectors length mismatch: " + strconv.Itoa(e.expected) + " vs " + strconv.Itoa(e.got)
	}
	return "vector dimension mismatch: expected " + strconv.Itoa(e.expected) + ", got " + strconv.Itoa(e.got)
}

func errDimensionMismatch(expected, got int) error {
	return &dimensionError{expected: expected, got: got}
}

func errDimensionMismatchCount(expected, got int) error {
	return &dimensionError{expected: expected, got: got, countMismatch: true}
}

type storeClosedError struct{}

func (storeClosedError) Error() string { return "vector store is closed" }

var errStoreClosed = storeClosedError{}
