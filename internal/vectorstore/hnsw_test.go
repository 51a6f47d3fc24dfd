package vectorstore

import (
	"context"
	"testing"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/stretchr/testify/require"
)

func mkChunk(doc string, idx, accessLevel int, content string) model.Chunk {
	return model.Chunk{DocumentID: doc, ChunkIndex: idx, AccessLevel: accessLevel, Content: content, Metadata: model.Metadata{}}
}

func TestHNSWQueryFiltersByAccessLevel(t *testing.T) {
	store := NewHNSWStore(4)
	ctx := context.Background()

	chunks := []model.Chunk{
		mkChunk("doc1", 0, 10, "public stuff"),
		mkChunk("doc1", 1, 90, "secret stuff"),
	}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, store.Upsert(ctx, chunks, vectors))

	results, err := store.Query(ctx, []float32{0.5, 0.5, 0, 0}, 10, 40)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "doc1_1", r.ID)
	}
}

func TestHNSWDeleteDocumentRemovesAllChunks(t *testing.T) {
	store := NewHNSWStore(2)
	ctx := context.Background()
	chunks := []model.Chunk{mkChunk("doc1", 0, 10, "a"), mkChunk("doc1", 1, 10, "b"), mkChunk("doc2", 0, 10, "c")}
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	require.NoError(t, store.Upsert(ctx, chunks, vectors))
	require.Equal(t, 3, store.Count())

	require.NoError(t, store.DeleteDocument(ctx, "doc1"))
	require.Equal(t, 1, store.Count())

	all, err := store.IterateChunks(ctx, 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "doc2", all[0].DocumentID)
}

func TestHNSWUpsertReplacesExistingChunk(t *testing.T) {
	store := NewHNSWStore(2)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []model.Chunk{mkChunk("doc1", 0, 10, "v1")}, [][]float32{{1, 0}}))
	require.NoError(t, store.Upsert(ctx, []model.Chunk{mkChunk("doc1", 0, 10, "v2")}, [][]float32{{0, 1}}))
	require.Equal(t, 1, store.Count())

	all, err := store.IterateChunks(ctx, 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "v2", all[0].Content)
}

func TestHNSWHeartbeatFailsAfterClose(t *testing.T) {
	store := NewHNSWStore(2)
	require.NoError(t, store.Close())
	require.Error(t, store.Heartbeat(context.Background()))
}
