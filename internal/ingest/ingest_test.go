package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cortexkb/retrieval-engine/internal/analyzer"
	"github.com/cortexkb/retrieval-engine/internal/bm25index"
	"github.com/cortexkb/retrieval-engine/internal/cache"
	"github.com/cortexkb/retrieval-engine/internal/chunker"
	"github.com/cortexkb/retrieval-engine/internal/docparse"
	"github.com/cortexkb/retrieval-engine/internal/embedclient"
	"github.com/cortexkb/retrieval-engine/internal/keywords"
	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/cortexkb/retrieval-engine/internal/sink"
	"github.com/cortexkb/retrieval-engine/internal/tableproc"
	"github.com/cortexkb/retrieval-engine/internal/vectorstore"
)

type fakeEmbedClient struct{ dim int }

func (f *fakeEmbedClient) EmbedQuery(ctx context.Context, query string) (embedclient.Result, error) {
	return embedclient.Result{Vector: make([]float32, f.dim)}, nil
}

func (f *fakeEmbedClient) EmbedDocuments(ctx context.Context, texts []string) ([]embedclient.Result, error) {
	out := make([]embedclient.Result, len(texts))
	for i := range texts {
		out[i] = embedclient.Result{Vector: make([]float32, f.dim)}
	}
	return out, nil
}

func (f *fakeEmbedClient) Dimensions() int                    { return f.dim }
func (f *fakeEmbedClient) ModelName() string                  { return "fake-embed" }
func (f *fakeEmbedClient) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedClient) Close() error                       { return nil }

type fakeVectorStore struct {
	upserted [][]model.Chunk
	deleted  []string
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	f.upserted = append(f.upserted, chunks)
	return nil
}

func (f *fakeVectorStore) Query(ctx context.Context, vector []float32, topK int, maxAccessLevel int) ([]vectorstore.VectorResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) DeleteDocument(ctx context.Context, docID string) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

func (f *fakeVectorStore) IterateChunks(ctx context.Context, maxAccessLevel int) ([]model.Chunk, error) {
	return nil, nil
}

func (f *fakeVectorStore) Heartbeat(ctx context.Context) error { return nil }
func (f *fakeVectorStore) Close() error                        { return nil }

type fakeSink struct {
	docs map[string]model.Document
}

func newFakeSink() *fakeSink {
	return &fakeSink{docs: map[string]model.Document{}}
}

func (f *fakeSink) UpsertDocument(ctx context.Context, doc model.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeSink) GetDocument(ctx context.Context, docID string) (model.Document, bool, error) {
	d, ok := f.docs[docID]
	return d, ok, nil
}

func (f *fakeSink) UpsertChunks(ctx context.Context, rows []sink.ChunkRow) error { return nil }

func (f *fakeSink) DeleteDocumentChunks(ctx context.Context, docID string) error { return nil }

func (f *fakeSink) Close() {}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) GetResult(ctx context.Context, key string) (cache.ResultEntry, bool) {
	return cache.ResultEntry{}, false
}
func (f *fakeCache) PutResult(ctx context.Context, key string, entry cache.ResultEntry, ttl time.Duration) {
}
func (f *fakeCache) GetBM25(ctx context.Context, accessLevel int) ([]byte, bool) { return nil, false }
func (f *fakeCache) PutBM25(ctx context.Context, accessLevel int, blob []byte, ttl time.Duration) {}
func (f *fakeCache) Invalidate(ctx context.Context, prefix string) {
	f.invalidated = append(f.invalidated, prefix)
}
func (f *fakeCache) Ping(ctx context.Context) error { return nil }

func TestProcessDocumentEndToEnd(t *testing.T) {
	log := zerolog.Nop()
	tp := tableproc.New(log)
	oc := New(
		Config{RetryAttempts: 1, RetryBase: time.Millisecond, EmbedWorkers: 4},
		docparse.NewRegistry(),
		analyzer.New(log),
		chunker.New(tp, log),
		tp,
		keywords.New(keywords.Config{}, log),
		&fakeEmbedClient{dim: 8},
		&fakeVectorStore{},
		newFakeSink(),
		&fakeCache{},
		bm25index.New(bm25index.DefaultConfig(), log),
		log,
	)

	dir := t.TempDir()
	path := filepath.Join(dir, "order.txt")
	text := "ПРИКАЗ № 14\nот 01.02.2024\n\n1. Назначить ответственного за делопроизводство.\n2. Контроль возложить на заместителя директора.\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	report, err := oc.ProcessDocument(context.Background(), Task{
		DocumentID:    "doc-1",
		FilePath:      path,
		AccessLevel:   50,
		DocumentTitle: "Приказ о делопроизводстве",
	})
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if report.ChunkCount == 0 {
		t.Fatal("expected at least one chunk")
	}
	if report.DocumentID != "doc-1" {
		t.Fatalf("document id = %q", report.DocumentID)
	}
}

func TestProcessDocumentRejectsOutOfRangeAccessLevel(t *testing.T) {
	log := zerolog.Nop()
	tp := tableproc.New(log)
	oc := New(
		Config{RetryAttempts: 1, RetryBase: time.Millisecond, EmbedWorkers: 4},
		docparse.NewRegistry(),
		analyzer.New(log),
		chunker.New(tp, log),
		tp,
		keywords.New(keywords.Config{}, log),
		&fakeEmbedClient{dim: 8},
		&fakeVectorStore{},
		newFakeSink(),
		&fakeCache{},
		bm25index.New(bm25index.DefaultConfig(), log),
		log,
	)

	_, err := oc.ProcessDocument(context.Background(), Task{
		DocumentID:  "doc-2",
		FilePath:    "unused.txt",
		AccessLevel: 0,
	})
	if err == nil {
		t.Fatal("expected validation error for out-of-range access level")
	}
}
