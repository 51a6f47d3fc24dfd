package vectorstore

import (
	"context"
	"strconv"
	"time"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/cortexkb/retrieval-engine/internal/vectorpool"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantNamespace deterministically maps the system's own "{doc}_{idx}"
// chunk IDs onto the UUID point IDs Qdrant requires.
var qdrantNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func chunkPointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(qdrantNamespace, []byte(chunkID)).String())
}

// qdrantHandle adapts a *qdrant.Client to vectorpool.Handle so the pool's
// borrow/return/heartbeat machinery can manage gRPC connections to the
// external ANN store exactly as §4.1 describes.
type qdrantHandle struct {
	client *qdrant.Client
}

func (h *qdrantHandle) Ping(ctx context.Context) error {
	_, err := h.client.HealthCheck(ctx)
	return err
}

func (h *qdrantHandle) Close() error {
	return h.client.Close()
}

// NewQdrantFactory returns a vectorpool.Factory that dials a fresh Qdrant
// client per pooled connection.
func NewQdrantFactory(host string, port int, useTLS bool) vectorpool.Factory {
	return func(ctx context.Context) (vectorpool.Handle, error) {
		client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, UseTLS: useTLS})
		if err != nil {
			return nil, err
		}
		return &qdrantHandle{client: client}, nil
	}
}

// QdrantStore is the production Store backend: every operation borrows a
// pooled gRPC connection, uses it, and returns it on every exit path
// (§5 "pool-borrow idiom is strictly scoped").
type QdrantStore struct {
	pool           *vectorpool.Pool
	collectionName string
	borrowTimeout  time.Duration
}

// NewQdrantStore wraps an already-constructed pool for one collection.
func NewQdrantStore(pool *vectorpool.Pool, collectionName string, borrowTimeout time.Duration) *QdrantStore {
	if borrowTimeout <= 0 {
		borrowTimeout = 30 * time.Second
	}
	return &QdrantStore{pool: pool, collectionName: collectionName, borrowTimeout: borrowTimeout}
}

// EnsureCollection creates the collection with the glossary's fixed HNSW
// parameters if it doesn't already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	return s.with(ctx, func(client *qdrant.Client) error {
		exists, err := client.CollectionExists(ctx, s.collectionName)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		m := uint64(HNSWParams.M)
		efc := uint64(HNSWParams.EfConstruction)
		return client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efc,
				},
			}),
		})
	})
}

func (s *QdrantStore) with(ctx context.Context, fn func(client *qdrant.Client) error) error {
	h, err := s.pool.Get(ctx, s.borrowTimeout)
	if err != nil {
		return err
	}
	qh := h.(*qdrantHandle)
	defer s.pool.Return(ctx, h)
	return fn(qh.client)
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errDimensionMismatchCount(len(chunks), len(vectors))
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := metadataToPayload(c)
		points = append(points, &qdrant.PointStruct{
			Id:      chunkPointID(c.ID()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	return s.with(ctx, func(client *qdrant.Client) error {
		_, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collectionName,
			Points:         points,
		})
		return err
	})
}

// Query implements Store, filtering server-side on access_level.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, maxAccessLevel int) ([]VectorResult, error) {
	var out []VectorResult
	err := s.with(ctx, func(client *qdrant.Client) error {
		limit := uint64(topK)
		lte := float64(maxAccessLevel)
		points, err := client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          &limit,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewRange("access_level", &qdrant.Range{Lte: &lte}),
				},
			},
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		out = make([]VectorResult, 0, len(points))
		for _, p := range points {
			id, content, meta := payloadToChunk(p.GetPayload())
			out = append(out, VectorResult{
				ID:         id,
				Content:    content,
				Metadata:   meta,
				Similarity: float64(p.GetScore()),
			})
		}
		return nil
	})
	return out, err
}

// DeleteDocument implements Store by filtering on the document_id payload
// field rather than recomputing every chunk's point ID.
func (s *QdrantStore) DeleteDocument(ctx context.Context, docID string) error {
	return s.with(ctx, func(client *qdrant.Client) error {
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collectionName,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch("document_id", docID),
				},
			}),
		})
		return err
	})
}

// IterateChunks implements Store via a scroll cursor, paging until
// exhausted.
func (s *QdrantStore) IterateChunks(ctx context.Context, maxAccessLevel int) ([]model.Chunk, error) {
	var out []model.Chunk
	err := s.with(ctx, func(client *qdrant.Client) error {
		lte := float64(maxAccessLevel)
		var offset *qdrant.PointId
		for {
			limit := uint32(256)
			resp, err := client.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.collectionName,
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewRange("access_level", &qdrant.Range{Lte: &lte}),
					},
				},
				Limit:       &limit,
				Offset:      offset,
				WithPayload: qdrant.NewWithPayload(true),
			})
			if err != nil {
				return err
			}
			if len(resp) == 0 {
				return nil
			}
			for _, p := range resp {
				payload := p.GetPayload()
				_, content, meta := payloadToChunk(payload)
				c := chunkFromMeta(content, meta)
				c.DocumentID = payload["document_id"].GetStringValue()
				c.ChunkIndex = int(payload["chunk_index"].GetIntegerValue())
				out = append(out, c)
			}
			offset = resp[len(resp)-1].GetId()
			if len(resp) < int(limit) {
				return nil
			}
		}
	})
	return out, err
}

// Heartbeat implements Store.
func (s *QdrantStore) Heartbeat(ctx context.Context) error {
	return s.with(ctx, func(client *qdrant.Client) error {
		_, err := client.HealthCheck(ctx)
		return err
	})
}

// Close releases the underlying pool.
func (s *QdrantStore) Close() error {
	return s.pool.Close()
}

func metadataToPayload(c model.Chunk) map[string]any {
	payload := map[string]any{
		"document_id":  c.DocumentID,
		"chunk_index":  c.ChunkIndex,
		"content":      c.Content,
		"access_level": c.AccessLevel,
		"char_start":   c.CharStart,
		"char_end":     c.CharEnd,
	}
	for k, v := range c.Metadata {
		payload["meta_"+k] = v.String()
	}
	return payload
}

func payloadToChunk(payload map[string]*qdrant.Value) (id, content string, meta model.Metadata) {
	meta = model.Metadata{}
	docID := ""
	chunkIdx := 0
	for k, v := range payload {
		switch k {
		case "document_id":
			docID = v.GetStringValue()
		case "chunk_index":
			chunkIdx = int(v.GetIntegerValue())
		case "content":
			content = v.GetStringValue()
		case "access_level":
			meta["access_level"] = model.MetaInt(int(v.GetIntegerValue()))
		default:
			if len(k) > 5 && k[:5] == "meta_" {
				meta[k[5:]] = model.MetaString(v.GetStringValue())
			}
		}
	}
	id = docID + "_" + strconv.Itoa(chunkIdx)
	return id, content, meta
}

func chunkFromMeta(content string, meta model.Metadata) model.Chunk {
	accessLevel, _ := meta.Get("access_level").Int()
	return model.Chunk{
		Content:     content,
		AccessLevel: accessLevel,
		Metadata:    meta,
	}
}

var _ Store = (*QdrantStore)(nil)
var _ Store = (*HNSWStore)(nil)
