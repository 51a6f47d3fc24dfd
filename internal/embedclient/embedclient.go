// Package embedclient wraps the external embedding inference service
// (component C3). It mirrors the teacher's mlx_reranker.go HTTP-client
// skeleton (health-check-on-construct, per-call timing) while adding the
// spec's language-adaptive instruction prefixing and tiktoken-go token
// accounting — the teacher's Embedder interface (internal/embed/types.go)
// is kept in shape (Embed/EmbedBatch/Dimensions/ModelName/Available/Close).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	internalerrors "github.com/cortexkb/retrieval-engine/internal/errors"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

const (
	// DefaultDimension is the fixed embedding width (§6 EMBEDDING_DIMENSION).
	DefaultDimension = 1024
	// DefaultMaxSeqLength bounds input length (§6 EMBEDDING_MAX_SEQ_LENGTH).
	DefaultMaxSeqLength = 512
	// DefaultBatchSize is the batching cap for EmbedBatch (§4.3).
	DefaultBatchSize = 32
	// cyrillicRatioThreshold selects the Russian instruction prefix when
	// exceeded (§4.3).
	cyrillicRatioThreshold = 0.30

	russianInstructionPrefix = "Инструкция: Учитывая запрос пользователя, найдите релевантные фрагменты документов.\nЗапрос: "
	englishInstructionPrefix = "Instruct: Given a user query, retrieve relevant document passages.\nQuery: "
)

var cyrillicWordRegex = regexp.MustCompile(`[а-яё]+`)
var alphaWordRegex = regexp.MustCompile(`\p{L}+`)

// Result carries one embedding call's vector plus the accounting fields
// §6's retrieval task reports.
type Result struct {
	Vector            []float32
	TokenCount        int
	DetectedLanguage  string
	InstructionPrefix string
	Duration          time.Duration
}

// Client is the Embedding Client abstraction the Hybrid Retriever and
// Ingest Orchestrator depend on.
type Client interface {
	// EmbedQuery embeds a query string, applying the language-adaptive
	// instruction prefix.
	EmbedQuery(ctx context.Context, query string) (Result, error)
	// EmbedDocuments embeds chunk texts as documents (no instruction
	// prefix), batching internally at DefaultBatchSize.
	EmbedDocuments(ctx context.Context, texts []string) ([]Result, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// HTTPClient wraps a local embedding inference HTTP endpoint, styled on
// the teacher's MLXReranker (health-check-on-construct, net/http
// transport tuning, per-call timing).
type HTTPClient struct {
	http       *http.Client
	endpoint   string
	model      string
	dimensions int
	log        zerolog.Logger
	enc        *tiktoken.Tiktoken
}

// Config configures an HTTPClient.
type Config struct {
	Endpoint        string
	Model           string
	Dimensions      int
	Timeout         time.Duration
	SkipHealthCheck bool
}

// New constructs an HTTPClient, health-checking the endpoint unless
// SkipHealthCheck is set.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*HTTPClient, error) {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimension
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, internalerrors.New(internalerrors.KindFatal, "failed to load token encoder", err)
	}
	c := &HTTPClient{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		log:        log.With().Str("component", "embedclient").Logger(),
		enc:        enc,
	}
	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if !c.Available(checkCtx) {
			return nil, internalerrors.New(internalerrors.KindTransientTransport, "embedding service health check failed", nil).
				WithDetail("endpoint", cfg.Endpoint)
		}
	}
	return c, nil
}

// DetectLanguage classifies text as "ru" or "en" by Cyrillic-token ratio
// (§4.3): tokens matching [а-яё] divided by total alphabetic tokens; a
// ratio above 0.30 selects Russian.
func DetectLanguage(text string) string {
	alphaWords := alphaWordRegex.FindAllString(strings.ToLower(text), -1)
	if len(alphaWords) == 0 {
		return "en"
	}
	cyrillic := cyrillicWordRegex.FindAllString(strings.ToLower(text), -1)
	ratio := float64(len(cyrillic)) / float64(len(alphaWords))
	if ratio > cyrillicRatioThreshold {
		return "ru"
	}
	return "en"
}

// InstructionPrefix returns the fixed instruction prefix for a detected
// language.
func InstructionPrefix(language string) string {
	if language == "ru" {
		return russianInstructionPrefix
	}
	return englishInstructionPrefix
}

// EmbedQuery implements Client: queries receive the language-adaptive
// instruction prefix; documents receive none (§4.3).
func (c *HTTPClient) EmbedQuery(ctx context.Context, query string) (Result, error) {
	lang := DetectLanguage(query)
	prefix := InstructionPrefix(lang)
	start := time.Now()
	vec, err := c.embedOne(ctx, prefix+query)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Vector:            normalize(vec),
		TokenCount:        len(c.enc.Encode(prefix+query, nil, nil)),
		DetectedLanguage:  lang,
		InstructionPrefix: prefix,
		Duration:          time.Since(start),
	}, nil
}

// EmbedDocuments implements Client, batching internally at
// DefaultBatchSize (§4.3 "Batching caps at 32").
func (c *HTTPClient) EmbedDocuments(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, 0, len(texts))
	for start := 0; start < len(texts); start += DefaultBatchSize {
		end := start + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		batchStart := time.Now()
		vectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(batchStart)
		for i, vec := range vectors {
			results = append(results, Result{
				Vector:     normalize(vec),
				TokenCount: len(c.enc.Encode(batch[i], nil, nil)),
				Duration:   elapsed,
			})
		}
	}
	return results, nil
}

// Dimensions implements Client.
func (c *HTTPClient) Dimensions() int { return c.dimensions }

// ModelName implements Client.
func (c *HTTPClient) ModelName() string { return c.model }

// Available implements Client by probing /health.
func (c *HTTPClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close implements Client.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *HTTPClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, internalerrors.New(internalerrors.KindTransientTransport, "embedding service returned no vectors", nil)
	}
	return vecs[0], nil
}

func (c *HTTPClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, internalerrors.New(internalerrors.KindTransientTransport, "embedding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, internalerrors.New(internalerrors.KindTransientTransport, fmt.Sprintf("embedding service returned %d", resp.StatusCode), nil).
			WithDetail("body", string(raw))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, internalerrors.New(internalerrors.KindTransientTransport, "failed to decode embedding response", err)
	}
	return out.Embeddings, nil
}

// normalize scales a vector to unit length, per §4.3 "Returns normalized
// unit-length vectors".
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}

var _ Client = (*HTTPClient)(nil)
