// Package bm25index implements the BM25 Indexer (component C12): a
// hand-rolled Okapi BM25 scorer over the morphological tokenizer's
// vocabulary (component C5), one shared index whose documents carry their
// access level and are filtered by it at search time. It keeps the
// teacher's BM25Index interface shape (internal/store/bm25.go: Index,
// Search, Delete, AllIDs, Stats, Save, Load, Close) and its
// corruption-detect-and-rebuild resilience pattern, but replaces the
// Bleve-backed implementation with a plain in-memory inverted index —
// this repo's documents are small enough that an embedded search engine
// buys nothing a plain postings map doesn't already give, and every
// retrieval still flows through the same chunk-access-level filter the
// rest of the stack enforces.
package bm25index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/cortexkb/retrieval-engine/internal/lexer"
	"github.com/rs/zerolog"
)

// Config tunes the BM25 scoring formula.
type Config struct {
	K1 float64 // term-frequency saturation, default 1.2
	B  float64 // length normalization, default 0.75
}

// DefaultConfig matches the teacher's BM25Config defaults.
func DefaultConfig() Config { return Config{K1: 1.2, B: 0.75} }

// Document is one indexed item: a chunk ID, its raw content (tokenized when
// indexed), and the access level gating it.
type Document struct {
	ID          string
	Content     string
	AccessLevel int
}

// Result is one scored hit.
type Result struct {
	DocID        string
	Content      string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes index size.
type Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

type postingList map[string]int // docID -> term frequency

// Index is an in-memory Okapi BM25 inverted index, access-level filtered
// at search time.
type Index struct {
	mu        sync.RWMutex
	cfg       Config
	postings  map[string]postingList // term -> docID -> tf
	docTokens map[string][]string    // docID -> tokens (kept for matched-term extraction)
	docContent map[string]string    // docID -> original content, for result enrichment
	docLength map[string]int
	access    map[string]int
	totalLen  int
	closed    bool
	log       zerolog.Logger
}

// New constructs an empty Index.
func New(cfg Config, log zerolog.Logger) *Index {
	return &Index{
		cfg:       cfg,
		postings:  make(map[string]postingList),
		docTokens: make(map[string][]string),
		docContent: make(map[string]string),
		docLength: make(map[string]int),
		access:    make(map[string]int),
		log:       log.With().Str("component", "bm25index").Logger(),
	}
}

// Index adds or replaces documents in the index, tokenizing their content
// through the shared morphological tokenizer so the lexical leg of hybrid
// search and this index agree on vocabulary.
func (idx *Index) Index(ctx context.Context, docs []Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("bm25index: index is closed")
	}
	for _, doc := range docs {
		idx.removeLocked(doc.ID)
		tokens := lexer.Tokenize(doc.Content)
		idx.docTokens[doc.ID] = tokens
		idx.docContent[doc.ID] = doc.Content
		idx.docLength[doc.ID] = len(tokens)
		idx.access[doc.ID] = doc.AccessLevel
		idx.totalLen += len(tokens)

		tf := map[string]int{}
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, freq := range tf {
			if idx.postings[term] == nil {
				idx.postings[term] = postingList{}
			}
			idx.postings[term][doc.ID] = freq
		}
	}
	return nil
}

// Search scores query against every indexed document whose access level is
// ≤ accessLevel, returning the top `limit` hits by BM25 score descending.
func (idx *Index) Search(ctx context.Context, query string, accessLevel, limit int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("bm25index: index is closed")
	}

	terms := lexer.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	n := len(idx.docTokens)
	if n == 0 {
		return nil, nil
	}
	avgDocLen := float64(idx.totalLen) / float64(n)

	scores := map[string]float64{}
	matched := map[string]map[string]struct{}{}
	for _, term := range terms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idfScore(n, len(postings))
		for docID, tf := range postings {
			if idx.access[docID] > accessLevel {
				continue
			}
			dl := float64(idx.docLength[docID])
			denom := float64(tf) + idx.cfg.K1*(1-idx.cfg.B+idx.cfg.B*dl/avgDocLen)
			scores[docID] += idf * (float64(tf) * (idx.cfg.K1 + 1) / denom)
			if matched[docID] == nil {
				matched[docID] = map[string]struct{}{}
			}
			matched[docID][term] = struct{}{}
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		terms := make([]string, 0, len(matched[docID]))
		for t := range matched[docID] {
			terms = append(terms, t)
		}
		results = append(results, Result{DocID: docID, Content: idx.docContent[docID], Score: score, MatchedTerms: terms})
	}
	sortResultsDescending(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// idfScore is the standard Okapi BM25 IDF term, floored at 0 so very common
// terms never contribute a negative score.
func idfScore(n, df int) float64 {
	v := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
	if v < 0 {
		return 0
	}
	return v
}

func sortResultsDescending(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

// Delete removes documents by ID.
func (idx *Index) Delete(ctx context.Context, docIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("bm25index: index is closed")
	}
	for _, id := range docIDs {
		idx.removeLocked(id)
	}
	return nil
}

func (idx *Index) removeLocked(docID string) {
	if tokens, ok := idx.docTokens[docID]; ok {
		idx.totalLen -= len(tokens)
		for term := range uniqueStrings(tokens) {
			if pl, ok := idx.postings[term]; ok {
				delete(pl, docID)
				if len(pl) == 0 {
					delete(idx.postings, term)
				}
			}
		}
	}
	delete(idx.docTokens, docID)
	delete(idx.docContent, docID)
	delete(idx.docLength, docID)
	delete(idx.access, docID)
}

func uniqueStrings(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}

// AllIDs returns every indexed document ID, for consistency checks against
// the vector store.
func (idx *Index) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("bm25index: index is closed")
	}
	ids := make([]string, 0, len(idx.docTokens))
	for id := range idx.docTokens {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats reports index size.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed || len(idx.docTokens) == 0 {
		return Stats{}
	}
	return Stats{
		DocumentCount: len(idx.docTokens),
		TermCount:     len(idx.postings),
		AvgDocLength:  float64(idx.totalLen) / float64(len(idx.docTokens)),
	}
}

// snapshot is the on-disk serialization format used by Save/Load.
type snapshot struct {
	Postings   map[string]postingList `json:"postings"`
	DocTokens  map[string][]string    `json:"doc_tokens"`
	DocContent map[string]string      `json:"doc_content"`
	DocLength  map[string]int         `json:"doc_length"`
	Access     map[string]int         `json:"access"`
	TotalLen   int                    `json:"total_len"`
}

// Save persists the index to path as JSON, so a restart can skip a full
// rebuild from the vector store.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	snap := snapshot{
		Postings:   idx.postings,
		DocTokens:  idx.docTokens,
		DocContent: idx.docContent,
		DocLength:  idx.docLength,
		Access:     idx.access,
		TotalLen:   idx.totalLen,
	}
	idx.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("bm25index: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bm25index: write snapshot: %w", err)
	}
	return nil
}

// Load restores the index from a Save'd snapshot. A corrupt or missing
// snapshot is reported to the caller, which per §4.12's resilience
// contract should fall back to rebuilding from the vector store rather
// than treating the index as empty.
func (idx *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bm25index: read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("bm25index: snapshot is corrupt: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = snap.Postings
	idx.docTokens = snap.DocTokens
	idx.docContent = snap.DocContent
	idx.docLength = snap.DocLength
	idx.access = snap.Access
	idx.totalLen = snap.TotalLen
	idx.closed = false
	if idx.postings == nil {
		idx.postings = map[string]postingList{}
	}
	if idx.docTokens == nil {
		idx.docTokens = map[string][]string{}
	}
	if idx.docContent == nil {
		idx.docContent = map[string]string{}
	}
	return nil
}

// Reset clears the index back to empty without closing it, so the next
// query rebuilds it from scratch (§4.12 "Invalidation": the singleton is
// reset, not disabled, on every write).
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]postingList)
	idx.docTokens = make(map[string][]string)
	idx.docContent = make(map[string]string)
	idx.docLength = make(map[string]int)
	idx.access = make(map[string]int)
	idx.totalLen = 0
}

// Close marks the index unusable; index/search/delete all fail afterward.
// Reserved for process shutdown — a write-path invalidation should call
// Reset instead.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}
