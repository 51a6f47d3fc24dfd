// Package retriever implements the Hybrid Retriever (component C13): the
// query-time orchestration that ties every other component together —
// cache lookup, the vector and lexical legs, Reciprocal Rank Fusion,
// cross-encoder reranking, adaptive relevance filtering and context
// assembly. It mirrors the shape of the teacher's internal/search.Engine
// (cache-first, fan-out-then-fuse-then-enrich), but the RRF stage here is
// rebuilt against this repo's own bm25index.Result/vectorstore.VectorResult
// types rather than importing internal/search/fusion.go directly, since
// that file is typed against the teacher's own internal/store package.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cortexkb/retrieval-engine/internal/bm25index"
	"github.com/cortexkb/retrieval-engine/internal/cache"
	internalerrors "github.com/cortexkb/retrieval-engine/internal/errors"
	"github.com/cortexkb/retrieval-engine/internal/embedclient"
	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/cortexkb/retrieval-engine/internal/obs"
	"github.com/cortexkb/retrieval-engine/internal/rerankclient"
	"github.com/cortexkb/retrieval-engine/internal/synonyms"
	"github.com/cortexkb/retrieval-engine/internal/vectorstore"
	"github.com/rs/zerolog"
)

// DefaultRRFConstant matches the teacher's fusion.go smoothing constant.
const DefaultRRFConstant = 60

// Config tunes one hybrid_search call (§4.13).
type Config struct {
	TopK         int
	RerankTopK   int
	VectorWeight float64
	BM25Weight   float64
	RRFConstant  int
	ResultTTL    time.Duration
}

// DefaultConfig matches §4.13's default arguments.
func DefaultConfig() Config {
	return Config{
		TopK:         30,
		RerankTopK:   10,
		VectorWeight: 0.7,
		BM25Weight:   0.3,
		RRFConstant:  DefaultRRFConstant,
		ResultTTL:    cache.DefaultResultTTL,
	}
}

// Source is one surviving context fragment's bookkeeping, echoed back in a
// Report (§6 "Retrieval task" output).
type Source struct {
	ChunkID         string  `json:"chunk_id"`
	DocumentTitle   string  `json:"document_title"`
	ChunkIndex      int     `json:"chunk_index"`
	AccessLevel     int     `json:"access_level"`
	SimilarityScore float64 `json:"similarity_score"`
	RerankScore     float64 `json:"rerank_score"`
	Text            string  `json:"text"`
}

// Report is hybrid_search's full output (§6).
type Report struct {
	Success            bool      `json:"success"`
	Context            string    `json:"context"`
	Sources            []Source  `json:"sources"`
	TotalFound         int       `json:"total_found"`
	RerankedCount      int       `json:"reranked_count"`
	FilteredCount      int       `json:"filtered_count"`
	BestRelevanceScore float64   `json:"best_relevance_score"`
	RelevanceFiltered  bool      `json:"relevance_filtered"`
	SearchTimeMs       int64     `json:"search_time_ms"`
	EmbeddingModel     string    `json:"embedding_model"`
	RerankingModel     string    `json:"reranking_model"`
	FromCache          bool      `json:"-"`
	CachedAt           time.Time `json:"-"`
}

// Retriever wires C1-C12 together behind the single hybrid_search entry
// point.
type Retriever struct {
	cfg     Config
	cache   cache.Store
	embed   embedclient.Client
	vectors vectorstore.Store
	bm25    *bm25index.Index
	syn     *synonyms.Expander
	rerank  rerankclient.Client
	metrics *obs.Metrics
	log     zerolog.Logger
}

// New constructs a Retriever. metrics may be nil (no Prometheus wiring).
func New(
	cfg Config,
	cacheStore cache.Store,
	embed embedclient.Client,
	vectors vectorstore.Store,
	bm25 *bm25index.Index,
	syn *synonyms.Expander,
	rerank rerankclient.Client,
	metrics *obs.Metrics,
	log zerolog.Logger,
) *Retriever {
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 30
	}
	return &Retriever{
		cfg:     cfg,
		cache:   cacheStore,
		embed:   embed,
		vectors: vectors,
		bm25:    bm25,
		syn:     syn,
		rerank:  rerank,
		metrics: metrics,
		log:     log.With().Str("component", "retriever").Logger(),
	}
}

// Search runs hybrid_search (§4.13) for one query.
func (r *Retriever) Search(ctx context.Context, query string, accessLevel int) (Report, error) {
	if accessLevel < 1 || accessLevel > 100 {
		return Report{}, internalerrors.Validation(
			fmt.Sprintf("access_level %d out of range [1,100]", accessLevel), nil)
	}

	ctx, span := obs.Tracer().Start(ctx, "retriever.hybrid_search")
	defer span.End()
	start := time.Now()

	// 1. Cache lookup.
	key := cache.ResultKey(query, accessLevel, map[string]any{
		"top_k":         r.cfg.TopK,
		"rerank_top_k":  r.cfg.RerankTopK,
		"vector_weight": r.cfg.VectorWeight,
		"bm25_weight":   r.cfg.BM25Weight,
	})
	if entry, ok := r.cache.GetResult(ctx, key); ok {
		var report Report
		if err := json.Unmarshal(entry.Payload, &report); err == nil {
			report.FromCache = true
			r.recordCache(true)
			return report, nil
		}
	}
	r.recordCache(false)

	// 2. BM25 readiness: an ingest write resets the shared index to force a
	// rebuild on next use (§4.12 "Invalidation"); this is that rebuild. An
	// empty index after the rebuild attempt (e.g. no vectors yet) degrades
	// the lexical leg to no contribution rather than failing the query.
	bm25Ready := r.bm25 != nil && r.bm25.Stats().DocumentCount > 0
	if r.bm25 != nil && !bm25Ready {
		if err := r.rebuildBM25(ctx); err != nil {
			r.log.Warn().Err(err).Msg("bm25 rebuild failed, continuing vector-only")
		} else {
			bm25Ready = r.bm25.Stats().DocumentCount > 0
		}
	}

	// 3. Vector leg.
	vecResults, err := r.vectorLeg(ctx, query, accessLevel)
	if err != nil {
		r.log.Warn().Err(err).Msg("vector leg failed, continuing lexical-only")
		vecResults = nil
	}

	// 4. Lexical leg.
	var bm25Results []bm25index.Result
	if bm25Ready {
		bm25Results, err = r.lexicalLeg(ctx, query, accessLevel)
		if err != nil {
			r.log.Warn().Err(err).Msg("lexical leg failed, continuing vector-only")
			bm25Results = nil
		}
	}

	// 5. Fusion.
	fused := r.fuse(bm25Results, vecResults)
	totalFound := len(fused)

	report := Report{Success: true, TotalFound: totalFound}
	if r.embed != nil {
		report.EmbeddingModel = r.embed.ModelName()
	}
	if r.rerank != nil {
		report.RerankingModel = r.rerank.ModelName()
	}

	if totalFound == 0 {
		report.Success = false
		report.SearchTimeMs = time.Since(start).Milliseconds()
		return report, nil
	}

	// 6. Rerank.
	reranked := r.applyRerank(ctx, query, fused)
	report.RerankedCount = len(reranked)

	// 7. Adaptive thresholding.
	survivors, best, filtered := adaptiveFilter(reranked)
	report.FilteredCount = filtered
	report.BestRelevanceScore = best
	report.RelevanceFiltered = filtered > 0

	if len(survivors) == 0 {
		report.Success = false
		report.SearchTimeMs = time.Since(start).Milliseconds()
		return report, nil
	}

	// 8. Context assembly.
	report.Context, report.Sources = assembleContext(survivors)
	report.SearchTimeMs = time.Since(start).Milliseconds()

	// 9. Cache write.
	r.writeCache(ctx, key, report)

	return report, nil
}

// BatchSearch iterates queries sequentially, exploiting the result cache,
// returning every report plus the number that were cache hits (§4.13
// batch_hybrid_search).
func (r *Retriever) BatchSearch(ctx context.Context, queries []string, accessLevel int) ([]Report, int, error) {
	reports := make([]Report, 0, len(queries))
	hits := 0
	for _, q := range queries {
		rep, err := r.Search(ctx, q, accessLevel)
		if err != nil {
			return reports, hits, err
		}
		if rep.FromCache {
			hits++
		}
		reports = append(reports, rep)
	}
	return reports, hits, nil
}

func (r *Retriever) vectorLeg(ctx context.Context, query string, accessLevel int) ([]vectorstore.VectorResult, error) {
	ctx, span := obs.Tracer().Start(ctx, "vector.search")
	defer span.End()
	stageStart := time.Now()
	defer r.recordStage("vector.search", stageStart)

	embedded, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.vectors.Query(ctx, embedded.Vector, r.cfg.TopK, accessLevel)
}

// maxAccessLevel bounds the access_level range (§3): the shared BM25 index
// holds every chunk regardless of the querying caller's clearance and is
// filtered per query, so a rebuild must pull the full corpus.
const maxAccessLevel = 100

// rebuildBM25 repopulates the shared BM25 index from the vector store,
// grounded on §4.12 steps 1-2 ("build corpus from the vector store") and
// the IterateChunks collaborator vectorstore.Store exists specifically to
// serve. Called lazily, the first time a query finds the index empty after
// an ingest write reset it.
func (r *Retriever) rebuildBM25(ctx context.Context) error {
	ctx, span := obs.Tracer().Start(ctx, "bm25.rebuild")
	defer span.End()

	chunks, err := r.vectors.IterateChunks(ctx, maxAccessLevel)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]bm25index.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = bm25index.Document{ID: c.ID(), Content: c.Content, AccessLevel: c.AccessLevel}
	}
	return r.bm25.Index(ctx, docs)
}

func (r *Retriever) lexicalLeg(ctx context.Context, query string, accessLevel int) ([]bm25index.Result, error) {
	_, span := obs.Tracer().Start(ctx, "bm25.search")
	defer span.End()
	stageStart := time.Now()
	defer r.recordStage("bm25.search", stageStart)

	expanded := query
	if r.syn != nil {
		expanded = r.syn.ExpandSmart(query)
	}
	return r.bm25.Search(ctx, expanded, accessLevel, r.cfg.TopK)
}

// fusedRecord is the intermediate RRF state for one chunk, the same shape
// as the teacher's fusion.go FusedResult but built against this repo's own
// leg result types. Rerank score/raw logit are filled in after fusion, by
// applyRerank.
type fusedRecord struct {
	ChunkID      string
	Content      string
	Metadata     model.Metadata
	BM25Score    float64
	BM25Rank     int
	VecScore     float64
	VecRank      int
	InBothLists  bool
	MatchedTerms []string
	RRFScore     float64
	RerankScore  float64
	RawLogit     float64
}

// docTitle reads the document_title chunk-metadata field stamped by the
// chunker, returning "" when the fused record came only from the lexical
// leg (which carries no metadata); assembleContext then uses the chunk ID.
func (f *fusedRecord) docTitle() string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata.GetString("document_title")
}

func (f *fusedRecord) chunkIndex() int {
	if f.Metadata == nil {
		return 0
	}
	n, _ := f.Metadata.Get("chunk_index").Int()
	return n
}

func (f *fusedRecord) accessLevel() int {
	if f.Metadata == nil {
		return 0
	}
	n, _ := f.Metadata.Get("access_level").Int()
	return n
}

// fuse implements step 5 of §4.13: per chunk id, sum weight/(k+rank) across
// only the legs the chunk actually appears in — no contribution for a leg a
// chunk is absent from — dedup by id (vector-leg content/metadata preferred
// when present), deterministic tie-break sort, and normalization to [0,1].
// Grounded on original_source's search_service.py _rrf_fusion, which sums
// strictly over legs a doc appears in with no bonus term for single-leg
// hits; the teacher's fusion.go adds such a bonus, which this repo omits
// so that bm25_weight=0 (or a dead BM25 leg) reproduces the pure vector
// order exactly, per the hybrid_search RRF monotonicity property.
func (r *Retriever) fuse(bm25 []bm25index.Result, vec []vectorstore.VectorResult) []*fusedRecord {
	if len(bm25) == 0 && len(vec) == 0 {
		return nil
	}

	k := r.cfg.RRFConstant
	byID := make(map[string]*fusedRecord, len(bm25)+len(vec))
	getOrCreate := func(id string) *fusedRecord {
		if rec, ok := byID[id]; ok {
			return rec
		}
		rec := &fusedRecord{ChunkID: id}
		byID[id] = rec
		return rec
	}

	for rank, res := range bm25 {
		rec := getOrCreate(res.DocID)
		rec.BM25Score = res.Score
		rec.BM25Rank = rank + 1
		rec.MatchedTerms = res.MatchedTerms
		if rec.Content == "" {
			rec.Content = res.Content
		}
		rec.RRFScore += r.cfg.BM25Weight / float64(k+rank+1)
	}

	for rank, res := range vec {
		rec := getOrCreate(res.ID)
		rec.VecScore = res.Similarity
		rec.VecRank = rank + 1
		rec.RRFScore += r.cfg.VectorWeight / float64(k+rank+1)
		// Vector-leg record is preferred for content/metadata (§4.13 step 5).
		rec.Content = res.Content
		rec.Metadata = res.Metadata
		if rec.BM25Rank > 0 {
			rec.InBothLists = true
		}
	}

	results := make([]*fusedRecord, 0, len(byID))
	for _, rec := range byID {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return fusedLess(results[i], results[j]) })

	if max := results[0].RRFScore; max != 0 {
		for _, rec := range results {
			rec.RRFScore /= max
		}
	}

	if len(results) > r.cfg.TopK {
		results = results[:r.cfg.TopK]
	}
	return results
}

// fusedLess implements fusion.go's compare: RRF score desc, in-both-lists
// true first, BM25 score desc, chunk ID asc.
func fusedLess(a, b *fusedRecord) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ChunkID < b.ChunkID
}

func (r *Retriever) applyRerank(ctx context.Context, query string, fused []*fusedRecord) []*fusedRecord {
	if r.rerank == nil || r.cfg.RerankTopK <= 0 || len(fused) == 0 {
		return fused
	}
	_, span := obs.Tracer().Start(ctx, "rerank")
	defer span.End()
	stageStart := time.Now()
	defer r.recordStage("rerank", stageStart)

	docs := make([]string, len(fused))
	for i, rec := range fused {
		docs[i] = rec.Content
	}
	items, err := r.rerank.Rerank(ctx, query, docs, r.cfg.RerankTopK)
	if err != nil {
		r.log.Warn().Err(err).Msg("rerank failed, falling back to RRF order")
		return fused
	}
	out := make([]*fusedRecord, 0, len(items))
	for _, item := range items {
		rec := fused[item.Index]
		rec.RerankScore = item.Score
		rec.RawLogit = item.RawLogit
		out = append(out, rec)
	}
	return out
}

func (r *Retriever) recordCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CacheHits.WithLabelValues("result").Inc()
	} else {
		r.metrics.CacheMisses.WithLabelValues("result").Inc()
	}
}

func (r *Retriever) recordStage(stage string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (r *Retriever) writeCache(ctx context.Context, key string, report Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	r.cache.PutResult(ctx, key, cache.ResultEntry{
		Payload:    payload,
		CachedAt:   time.Now(),
		TTLSeconds: int(r.cfg.ResultTTL.Seconds()),
	}, r.cfg.ResultTTL)
}

// adaptiveFilter implements §4.13 step 7: compute best/worst/range over
// rerank scores, pick the (high, general) threshold pair from the range
// table, reject the whole batch as off-corpus chatter when best is below
// the general threshold, else keep only items at or above the high
// threshold. Returns the surviving records in their given (rerank) order,
// the best score observed, and the count of records that did not survive.
func adaptiveFilter(reranked []*fusedRecord) (survivors []*fusedRecord, best float64, filtered int) {
	if len(reranked) == 0 {
		return nil, 0, 0
	}

	best = reranked[0].RerankScore
	worst := reranked[0].RerankScore
	for _, rec := range reranked[1:] {
		if rec.RerankScore > best {
			best = rec.RerankScore
		}
		if rec.RerankScore < worst {
			worst = rec.RerankScore
		}
	}
	rng := best - worst

	var highThreshold, generalThreshold float64
	switch {
	case rng > 2.0:
		highThreshold = best * 0.8
		generalThreshold = best * 0.4
	case rng > 1.0:
		highThreshold = best * 0.7
		generalThreshold = best * 0.3
	default:
		highThreshold = best - 0.1
		generalThreshold = best * 0.5
	}

	if best < generalThreshold {
		return nil, best, len(reranked)
	}

	survivors = make([]*fusedRecord, 0, len(reranked))
	for _, rec := range reranked {
		if rec.RerankScore >= highThreshold {
			survivors = append(survivors, rec)
		}
	}
	filtered = len(reranked) - len(survivors)
	return survivors, best, filtered
}

// assembleContext builds the final context string and Source list (§4.13
// step 8): one "[Источник {i}: {doc_title}]\n{content}\n" fragment per
// surviving item, concatenated with a blank line between fragments.
func assembleContext(survivors []*fusedRecord) (string, []Source) {
	var sb strings.Builder
	sources := make([]Source, 0, len(survivors))
	for i, rec := range survivors {
		title := rec.docTitle()
		if title == "" {
			title = rec.ChunkID
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[Источник %d: %s]\n%s\n", i+1, title, rec.Content)
		sources = append(sources, Source{
			ChunkID:         rec.ChunkID,
			DocumentTitle:   title,
			ChunkIndex:      rec.chunkIndex(),
			AccessLevel:     rec.accessLevel(),
			SimilarityScore: rec.VecScore,
			RerankScore:     rec.RerankScore,
			Text:            rec.Content,
		})
	}
	return sb.String(), sources
}
