// Package ingest implements the Ingest Orchestrator (component C11): the
// single entry point that drives one document through parse → analyze →
// chunk → keywords → embed → persist (§4.11), retrying the whole pipeline
// with exponential backoff on transient failure and compensating with a
// vector-store delete on terminal failure so a half-ingested document is
// never partially visible (§7 "Fatal... any partial chunks are
// compensated with a delete_all_chunks call").
//
// Orchestration style is grounded on the teacher's internal/index
// coordinator.go (step-by-step stage logging, continue-on-recoverable-
// error loops); the step sequence itself is ported from the original
// tasks.py Celery task that drove document_analyzer.py → chunking_service.py
// → keyword_service.py → embedding_service.py → database_service.py.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cortexkb/retrieval-engine/internal/analyzer"
	"github.com/cortexkb/retrieval-engine/internal/bm25index"
	"github.com/cortexkb/retrieval-engine/internal/cache"
	"github.com/cortexkb/retrieval-engine/internal/chunker"
	"github.com/cortexkb/retrieval-engine/internal/docparse"
	internalerrors "github.com/cortexkb/retrieval-engine/internal/errors"
	"github.com/cortexkb/retrieval-engine/internal/embedclient"
	"github.com/cortexkb/retrieval-engine/internal/keywords"
	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/cortexkb/retrieval-engine/internal/obs"
	"github.com/cortexkb/retrieval-engine/internal/sink"
	"github.com/cortexkb/retrieval-engine/internal/tableproc"
	"github.com/cortexkb/retrieval-engine/internal/vectorstore"
)

// Task is one ingest request (§6 "Ingest task").
type Task struct {
	DocumentID     string
	FilePath       string
	AccessLevel    int
	DocumentTitle  string
}

// Report is one ingest run's output (§6 "Ingest task" output).
type Report struct {
	DocumentID        string             `json:"document_id"`
	DocumentType      model.DocumentType `json:"document_type"`
	ChunkCount        int                `json:"chunk_count"`
	SemanticKeywords  []string           `json:"semantic_keywords"`
	TechnicalKeywords []string           `json:"technical_keywords"`
	StageDurations    map[string]int64   `json:"stage_durations_ms"`
	TotalDurationMs   int64              `json:"total_duration_ms"`
}

// Config tunes the orchestrator's retry policy and embedding concurrency.
type Config struct {
	RetryAttempts int
	RetryBase     time.Duration
	EmbedWorkers  int
}

// DefaultConfig matches §4.11/§5's stated defaults (ingest: 3 attempts,
// 60s base).
func DefaultConfig() Config {
	return Config{RetryAttempts: 3, RetryBase: 60 * time.Second, EmbedWorkers: 4}
}

// Orchestrator wires C7-C10 plus the embedding client, vector store and
// durable sink behind process_document (§4.11).
type Orchestrator struct {
	cfg      Config
	parsers  *docparse.Registry
	analyzer *analyzer.Analyzer
	chunker  *chunker.Chunker
	tableProc *tableproc.Processor
	keywords *keywords.Extractor
	embed    embedclient.Client
	vectors  vectorstore.Store
	sink     sink.Sink
	cache    cache.Store
	bm25     *bm25index.Index
	log      zerolog.Logger
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	parsers *docparse.Registry,
	docAnalyzer *analyzer.Analyzer,
	docChunker *chunker.Chunker,
	tableProc *tableproc.Processor,
	kw *keywords.Extractor,
	embed embedclient.Client,
	vectors vectorstore.Store,
	durableSink sink.Sink,
	cacheStore cache.Store,
	bm25 *bm25index.Index,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.RetryAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:       cfg,
		parsers:   parsers,
		analyzer:  docAnalyzer,
		chunker:   docChunker,
		tableProc: tableProc,
		keywords:  kw,
		embed:     embed,
		vectors:   vectors,
		sink:      durableSink,
		cache:     cacheStore,
		bm25:      bm25,
		log:       log.With().Str("component", "ingest").Logger(),
	}
}

// ProcessDocument implements process_document (§4.11): it retries the
// whole pipeline up to cfg.RetryAttempts times with exponential backoff,
// compensating with delete_all_chunks and a terminal ERROR status when
// every attempt fails.
func (o *Orchestrator) ProcessDocument(ctx context.Context, task Task) (Report, error) {
	if task.AccessLevel < 1 || task.AccessLevel > 100 {
		return Report{}, internalerrors.Validation(
			fmt.Sprintf("access_level %d out of range [1,100]", task.AccessLevel), nil)
	}

	retryCfg := internalerrors.RetryConfig{
		MaxRetries:   o.cfg.RetryAttempts - 1,
		InitialDelay: o.cfg.RetryBase,
		MaxDelay:     o.cfg.RetryBase * 8,
		Multiplier:   2.0,
	}

	report, err := internalerrors.RetryWithResult(ctx, retryCfg, func() (Report, error) {
		return o.attempt(ctx, task)
	})
	if err != nil {
		o.log.Error().Err(err).Str("document_id", task.DocumentID).Msg("ingest failed after retries, compensating")
		o.compensate(ctx, task.DocumentID)
		o.markError(ctx, task)
		return Report{}, err
	}
	return report, nil
}

func (o *Orchestrator) attempt(ctx context.Context, task Task) (Report, error) {
	start := time.Now()
	ctx, span := obs.Tracer().Start(ctx, "ingest.process_document")
	defer span.End()
	durations := map[string]int64{}

	o.markProcessing(ctx, task)

	// 1-2. Parse.
	stageStart := time.Now()
	parsed, err := o.parsers.ParseFile(task.FilePath)
	durations["parse"] = time.Since(stageStart).Milliseconds()
	if err != nil {
		return Report{}, internalerrors.Fatal("parse failed", err)
	}

	// 3. Analyze.
	stageStart = time.Now()
	meta, sections := o.analyzer.Analyze(parsed.Text)
	durations["analyze"] = time.Since(stageStart).Milliseconds()

	// 4. Canonical title: prefer the durable sink's existing record, then
	// the task's provided title, then whatever the analyzer extracted.
	title := task.DocumentTitle
	if existing, ok, gerr := o.sink.GetDocument(ctx, task.DocumentID); gerr == nil && ok && existing.Title != "" {
		title = existing.Title
	}
	if title == "" {
		title = meta.Title
	}
	meta.Title = title

	// Resolve any tables' surrounding context against the full text before
	// handing them to the chunker.
	tables := make([]model.Table, 0, len(parsed.Tables))
	for _, t := range parsed.Tables {
		tables = append(tables, o.tableProc.WithContext(t, parsed.Text))
	}

	// 5. Chunk.
	stageStart = time.Now()
	chunks := o.chunker.Chunk(chunker.Input{
		DocID:       task.DocumentID,
		AccessLevel: task.AccessLevel,
		Sections:    sections,
		DocMeta:     meta,
		Tables:      tables,
	})
	durations["chunk"] = time.Since(stageStart).Milliseconds()
	if len(chunks) == 0 {
		return Report{}, internalerrors.Fatal("chunking produced zero chunks", nil)
	}
	for i := range chunks {
		chunks[i].DocumentID = task.DocumentID
		chunks[i].AccessLevel = task.AccessLevel
	}

	// 6. Keywords, merged into each chunk's metadata.
	stageStart = time.Now()
	kwResults := make([]keywords.Result, len(chunks))
	for i, c := range chunks {
		kwResults[i] = o.keywords.Extract(ctx, c.Content)
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = model.Metadata{}
		}
		chunks[i].Metadata["semantic_keywords"] = model.MetaList(kwResults[i].Semantic)
		chunks[i].Metadata["technical_keywords"] = model.MetaList(kwResults[i].Technical)
		chunks[i].Metadata["all_keywords"] = model.MetaList(kwResults[i].All)
	}
	docKeywords := keywords.DocumentSummary(kwResults)
	durations["keywords"] = time.Since(stageStart).Milliseconds()

	// 7. Batch-embed chunk texts as documents (no instruction prefix).
	stageStart = time.Now()
	vectors, err := o.embedAll(ctx, chunks)
	durations["embed"] = time.Since(stageStart).Milliseconds()
	if err != nil {
		return Report{}, internalerrors.Wrap(internalerrors.KindTransientTransport, err)
	}

	// 8. Persist to the vector store and the durable sink.
	stageStart = time.Now()
	if err := o.vectors.Upsert(ctx, chunks, vectors); err != nil {
		return Report{}, internalerrors.Wrap(internalerrors.KindTransientTransport, err)
	}
	rows := make([]sink.ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = sink.ChunkRow{
			ID:          c.ID(),
			DocumentID:  c.DocumentID,
			ChunkIndex:  c.ChunkIndex,
			Content:     c.Content,
			AccessLevel: c.AccessLevel,
			CharCount:   c.CharCount(),
			Metadata:    c.Metadata,
			CreatedAt:   c.CreatedAt,
		}
	}
	if err := o.sink.UpsertChunks(ctx, rows); err != nil {
		return Report{}, internalerrors.Wrap(internalerrors.KindTransientTransport, err)
	}
	durations["persist"] = time.Since(stageStart).Milliseconds()

	// 9. Document status -> COMPLETED.
	if err := o.sink.UpsertDocument(ctx, model.Document{
		ID:          task.DocumentID,
		Title:       title,
		AccessLevel: task.AccessLevel,
		Status:      model.DocumentCompleted,
		ChunkCount:  len(chunks),
	}); err != nil {
		return Report{}, internalerrors.Wrap(internalerrors.KindTransientTransport, err)
	}

	// Invalidation: every write path invalidates both caches together
	// (§4.12 "Invalidation"), and the in-process BM25 instance is reset so
	// the next query rebuilds it.
	o.invalidateCaches(ctx)

	return Report{
		DocumentID:        task.DocumentID,
		DocumentType:       meta.Type,
		ChunkCount:         len(chunks),
		SemanticKeywords:   docKeywords.Semantic,
		TechnicalKeywords:  docKeywords.Technical,
		StageDurations:     durations,
		TotalDurationMs:    time.Since(start).Milliseconds(),
	}, nil
}

// embedAll batches chunk texts through the embedding client, fanning out
// sub-batches concurrently via errgroup the way the teacher's pipeline
// fans out CPU-bound work (§9 "golang.org/x/sync/errgroup ... drives the
// batch-embedding step's concurrent sub-batches").
func (o *Orchestrator) embedAll(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	const batchSize = 32
	numBatches := (len(texts) + batchSize - 1) / batchSize
	vectors := make([][]float32, len(texts))

	workers := o.cfg.EmbedWorkers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for b := 0; b < numBatches; b++ {
		b := b
		g.Go(func() error {
			start := b * batchSize
			end := start + batchSize
			if end > len(texts) {
				end = len(texts)
			}
			results, err := o.embed.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				return err
			}
			for i, r := range results {
				vectors[start+i] = r.Vector
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// compensate implements the fatal-path cleanup: delete_all_chunks against
// the vector store and the durable sink so a failed ingest leaves no
// partially-visible chunks (§7, §4.11 "Failure semantics").
func (o *Orchestrator) compensate(ctx context.Context, docID string) {
	if err := o.vectors.DeleteDocument(ctx, docID); err != nil {
		o.log.Warn().Err(err).Str("document_id", docID).Msg("compensating vector-store delete failed")
	}
	if err := o.sink.DeleteDocumentChunks(ctx, docID); err != nil {
		o.log.Warn().Err(err).Str("document_id", docID).Msg("compensating sink delete failed")
	}
}

func (o *Orchestrator) markProcessing(ctx context.Context, task Task) {
	_ = o.sink.UpsertDocument(ctx, model.Document{
		ID:          task.DocumentID,
		Title:       task.DocumentTitle,
		AccessLevel: task.AccessLevel,
		Status:      model.DocumentProcessing,
	})
}

func (o *Orchestrator) markError(ctx context.Context, task Task) {
	_ = o.sink.UpsertDocument(ctx, model.Document{
		ID:          task.DocumentID,
		Title:       task.DocumentTitle,
		AccessLevel: task.AccessLevel,
		Status:      model.DocumentError,
	})
}

// invalidateCaches drops both the result cache and the cached BM25 index
// blob, and resets the in-process BM25 singleton so the next query forces
// a rebuild (§4.12 "Invalidation").
func (o *Orchestrator) invalidateCaches(ctx context.Context) {
	o.cache.Invalidate(ctx, "result:")
	o.cache.Invalidate(ctx, "bm25:")
	if o.bm25 != nil {
		o.bm25.Reset()
	}
}
