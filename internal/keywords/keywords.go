// Package keywords implements the Keyword Extractor (component C7): a
// semantic half backed by an external keyphrase-extraction HTTP service
// (degrading gracefully to an empty list when that service is unavailable
// or slow) and a technical half built entirely on a fixed regex catalogue
// that always runs. Ported from keyword_service.py's KeywordService, with
// the KeyBERT call replaced by an HTTP call to a local keyphrase model,
// styled on the teacher's MLXReranker HTTP-client skeleton.
package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// minTextLength below which semantic extraction is skipped; technical
	// extraction still runs (§4.7).
	minTextLength = 50
	// maxSemanticTextLength truncates text fed to the semantic model.
	maxSemanticTextLength = 2000
	semanticScoreThreshold = 0.30
	semanticTopN           = 10
	semanticCandidatePool   = 20
	semanticDiversity       = 0.5
	// DocumentTopSemantic/DocumentTopTechnical/DocumentTopAll bound the
	// per-document aggregation (§4.7).
	DocumentTopSemantic = 15
	DocumentTopTechnical = 15
	DocumentTopAll       = 20

	defaultTimeout = 30 * time.Second
)

var russianKeywordStopWords = map[string]struct{}{
	"это": {}, "для": {}, "или": {}, "как": {}, "что": {}, "так": {}, "все": {}, "еще": {},
	"уже": {}, "его": {}, "ее": {}, "их": {}, "они": {}, "она": {}, "оно": {}, "мы": {},
	"вы": {}, "ты": {}, "я": {}, "он": {}, "при": {}, "под": {}, "над": {},
	"дата": {}, "года": {}, "год": {}, "лет": {}, "день": {}, "время": {}, "место": {}, "номер": {}, "пункт": {},
}

// Result is one text's extracted keyword sets.
type Result struct {
	Semantic  []string
	Technical []string
	All       []string
}

// Extractor extracts semantic and technical keywords from chunk text.
type Extractor struct {
	http     *http.Client
	endpoint string
	log      zerolog.Logger
	// skipSemantic disables the semantic HTTP call entirely (e.g. when no
	// endpoint is configured), leaving only the always-on technical half.
	skipSemantic bool
}

// Config configures an Extractor.
type Config struct {
	// Endpoint is the keyphrase-extraction service base URL. Leave empty
	// to run technical-only (semantic keywords always empty).
	Endpoint string
	Timeout  time.Duration
}

// New constructs an Extractor.
func New(cfg Config, log zerolog.Logger) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Extractor{
		http:         &http.Client{Timeout: cfg.Timeout},
		endpoint:     cfg.Endpoint,
		log:          log.With().Str("component", "keywords").Logger(),
		skipSemantic: cfg.Endpoint == "",
	}
}

// Extract returns semantic and technical keywords for text. Semantic
// extraction degrades silently to an empty list on any failure (model
// unavailable, timeout, malformed response); technical extraction always
// runs and never fails.
func (e *Extractor) Extract(ctx context.Context, text string) Result {
	technical := ExtractTechnicalTerms(text)
	if strings.TrimSpace(text) == "" || len(strings.TrimSpace(text)) < minTextLength {
		return Result{Technical: technical, All: technical}
	}

	semantic := e.extractSemantic(ctx, text)
	all := dedupeTop(append(append([]string{}, semantic...), technical...), 20)
	return Result{Semantic: semantic, Technical: technical, All: all}
}

type keyphraseRequest struct {
	Text           string  `json:"text"`
	NgramRangeMin  int     `json:"ngram_range_min"`
	NgramRangeMax  int     `json:"ngram_range_max"`
	UseMMR         bool    `json:"use_mmr"`
	Diversity      float64 `json:"diversity"`
	NumCandidates  int     `json:"nr_candidates"`
	TopN           int     `json:"top_n"`
}

type keyphraseResponse struct {
	Keywords []struct {
		Keyword string  `json:"keyword"`
		Score   float64 `json:"score"`
	} `json:"keywords"`
}

// extractSemantic calls the keyphrase model and applies the same filtering
// rules as the original KeyBERT pipeline: minimum length, score threshold,
// stop-word rejection, no leading digit, no underscore run, at most two
// words.
func (e *Extractor) extractSemantic(ctx context.Context, text string) []string {
	if e.skipSemantic {
		return nil
	}
	truncated := text
	if len(truncated) > maxSemanticTextLength {
		truncated = truncated[:maxSemanticTextLength] + "..."
	}

	body, err := json.Marshal(keyphraseRequest{
		Text:          truncated,
		NgramRangeMin: 1,
		NgramRangeMax: 2,
		UseMMR:        true,
		Diversity:     semanticDiversity,
		NumCandidates: semanticCandidatePool,
		TopN:          semanticTopN,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to encode keyphrase request")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/keyphrases", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		e.log.Warn().Err(err).Msg("keyphrase service unavailable, degrading to technical-only")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.log.Warn().Int("status", resp.StatusCode).Msg("keyphrase service returned non-200")
		return nil
	}

	var out keyphraseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		e.log.Warn().Err(err).Msg("failed to decode keyphrase response")
		return nil
	}

	var keywords []string
	for _, kw := range out.Keywords {
		cleaned := strings.ToLower(strings.TrimSpace(kw.Keyword))
		if !isAcceptableSemanticKeyword(cleaned, kw.Score) {
			continue
		}
		keywords = append(keywords, cleaned)
	}
	if len(keywords) > semanticTopN {
		keywords = keywords[:semanticTopN]
	}
	return keywords
}

func isAcceptableSemanticKeyword(keyword string, score float64) bool {
	if len(keyword) < 3 {
		return false
	}
	if score <= semanticScoreThreshold {
		return false
	}
	if _, stop := russianKeywordStopWords[keyword]; stop {
		return false
	}
	if keyword[0] >= '0' && keyword[0] <= '9' {
		return false
	}
	if strings.Contains(keyword, "___") {
		return false
	}
	if len(strings.Fields(keyword)) > 2 {
		return false
	}
	return true
}

// technicalPatterns is the fixed regex catalogue for always-on technical
// term extraction (§4.7), ported verbatim from _extract_technical_terms.
var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:Python|JavaScript|TypeScript|Java|C\+\+|C#|PHP|Ruby|Go|Rust|Swift|Kotlin|SQL)\b`),
	regexp.MustCompile(`(?i)\b(?:React|Vue|Angular|Django|Flask|Express|Spring|Laravel|Rails|ASP\.NET|FastAPI|Celery)\b`),
	regexp.MustCompile(`(?i)\b(?:PostgreSQL|MySQL|MongoDB|Redis|SQLite|Oracle|SQL Server|ChromaDB|Elasticsearch|Prisma)\b`),
	regexp.MustCompile(`(?i)\b(?:Docker|Kubernetes|AWS|Azure|GCP|API|REST|GraphQL|JWT|OAuth|SSL|TLS|RAG|LLM|AI|ML)\b`),
	regexp.MustCompile(`(?i)\b\w+\.(?:pdf|docx?|xlsx?|pptx?|csv|json|xml|html|css|js|ts|py|java|cpp|sql|md|txt)\b`),
	regexp.MustCompile(`(?i)\b(?:HTTP|HTTPS|FTP|SMTP|TCP|UDP|WebSocket|SSE)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:MB|GB|TB|KB|ms|sec|min|hour|%|px|em|rem)\b`),
	regexp.MustCompile(`\bv?\d+\.\d+(?:\.\d+)?(?:-\w+)?\b`),
	regexp.MustCompile(`(?i)\b(?:embedding|vector|neural|model|algorithm|dataset|transformer|BERT|GPT|LLM|NLP|RAG)\b`),
	regexp.MustCompile(`(?i)\b(?:SaaS|B2B|B2C|MVP|ROI|KPI|CRM|ERP|UI|UX|API)\b`),
	regexp.MustCompile(`(?i)\b(?:server|client|backend|frontend|database|cache|queue|worker|service|middleware)\b`),
}

var (
	functionCallRegex = regexp.MustCompile(`\b\w+\(\)`)
	camelCaseRegex     = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`)
	onlyPunctRegex     = regexp.MustCompile(`^[_\-.]+$`)
	onlyDigitsRegex    = regexp.MustCompile(`^[\d.]+$`)
)

var commonEnglishWords = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "WITH": {}, "BUT": {}, "NOT": {},
}

// ExtractTechnicalTerms scans text against the fixed catalogue of
// programming/ML/business vocabulary patterns. Always runs; never returns
// an error.
func ExtractTechnicalTerms(text string) []string {
	found := map[string]struct{}{}

	for _, pattern := range technicalPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			normalized := match
			if match == strings.ToUpper(match) && len(match) <= 5 {
				normalized = strings.ToUpper(match)
			} else {
				normalized = strings.ToLower(match)
			}
			found[normalized] = struct{}{}
		}
	}

	for _, match := range functionCallRegex.FindAllString(text, -1) {
		addIfClean(found, match)
	}
	for _, match := range camelCaseRegex.FindAllString(text, -1) {
		addIfClean(found, match)
	}

	var filtered []string
	for term := range found {
		if len(term) < 3 {
			continue
		}
		if onlyPunctRegex.MatchString(term) || onlyDigitsRegex.MatchString(term) {
			continue
		}
		if strings.Count(term, "_")*2 >= len(term) {
			continue
		}
		filtered = append(filtered, term)
	}
	sort.Strings(filtered)
	if len(filtered) > 10 {
		filtered = filtered[:10]
	}
	return filtered
}

func addIfClean(found map[string]struct{}, match string) {
	if len(match) <= 2 {
		return
	}
	if _, common := commonEnglishWords[match]; common {
		return
	}
	if strings.HasPrefix(match, "_") || strings.HasSuffix(match, "_") {
		return
	}
	if strings.Count(match, "_") > 1 {
		return
	}
	found[match] = struct{}{}
}

func dedupeTop(keywords []string, limit int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, k := range keywords {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// DocumentSummary aggregates per-chunk keyword results into a document-wide
// top-N summary by frequency (§4.7).
func DocumentSummary(chunkResults []Result) Result {
	semanticCounts := map[string]int{}
	technicalCounts := map[string]int{}
	for _, r := range chunkResults {
		for _, k := range r.Semantic {
			semanticCounts[k]++
		}
		for _, k := range r.Technical {
			technicalCounts[k]++
		}
	}

	topSemantic := topByCount(semanticCounts, DocumentTopSemantic)
	topTechnical := topByCount(technicalCounts, DocumentTopTechnical)
	all := dedupeTop(append(append([]string{}, topSemantic...), topTechnical...), DocumentTopAll)

	return Result{Semantic: topSemantic, Technical: topTechnical, All: all}
}

func topByCount(counts map[string]int, limit int) []string {
	type pair struct {
		term  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for term, count := range counts {
		pairs = append(pairs, pair{term, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].term < pairs[j].term
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.term
	}
	return out
}
