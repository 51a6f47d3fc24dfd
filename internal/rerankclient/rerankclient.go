// Package rerankclient wraps the external cross-encoder reranking service
// (component C4), styled directly on the teacher's MLXReranker
// (internal/search/mlx_reranker.go: health-check-on-construct, net/http
// transport tuning, per-call timing), replacing its scoring logic with
// the spec's raw-logit amplification-and-rescale pipeline (§4.4, §9).
package rerankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	internalerrors "github.com/cortexkb/retrieval-engine/internal/errors"
	"github.com/rs/zerolog"
)

// AmplificationFactor is the contract-fixed constant that makes the
// downstream adaptive thresholds (§4.13 step 7) meaningful: raw logits are
// scaled by 100 before exponentiation.
const AmplificationFactor = 100.0

// Item is one (document, raw logit) pair returned by Rerank, already
// rescaled and sorted.
type Item struct {
	Index    int
	Document string
	RawLogit float64
	Score    float64 // rescaled into [0, 10]
}

// Client is the Reranker Client abstraction.
type Client interface {
	// Rerank scores query against each document, returning the topK items
	// sorted descending by rescaled score (§4.4).
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Item, error)
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// HTTPClient wraps a local cross-encoder inference HTTP endpoint.
type HTTPClient struct {
	http     *http.Client
	endpoint string
	model    string
	log      zerolog.Logger
}

// Config configures an HTTPClient.
type Config struct {
	Endpoint        string
	Model           string
	Timeout         time.Duration
	SkipHealthCheck bool
}

// New constructs an HTTPClient, health-checking the endpoint unless
// SkipHealthCheck is set.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*HTTPClient, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
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
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		log:      log.With().Str("component", "rerankclient").Logger(),
	}
	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if !c.Available(checkCtx) {
			return nil, internalerrors.New(internalerrors.KindTransientTransport, "reranker service health check failed", nil).
				WithDetail("endpoint", cfg.Endpoint)
		}
	}
	return c, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Logits []float64 `json:"logits"`
}

// Rerank implements Client: fetches raw logits from the inference
// endpoint, then applies AmplifyAndRescale before truncating to topK.
func (c *HTTPClient) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Item, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	logits, err := c.rawLogits(ctx, query, documents)
	if err != nil {
		return nil, err
	}
	items := AmplifyAndRescale(documents, logits)
	if topK > 0 && topK < len(items) {
		items = items[:topK]
	}
	return items, nil
}

func (c *HTTPClient) rawLogits(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: c.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, internalerrors.New(internalerrors.KindTransientTransport, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, internalerrors.New(internalerrors.KindTransientTransport, fmt.Sprintf("reranker service returned %d", resp.StatusCode), nil).
			WithDetail("body", string(raw))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, internalerrors.New(internalerrors.KindTransientTransport, "failed to decode rerank response", err)
	}
	return out.Logits, nil
}

// ModelName implements Client.
func (c *HTTPClient) ModelName() string { return c.model }

// Available implements Client.
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

// AmplifyAndRescale implements the §4.4 post-processing pipeline:
//
//  1. amplified_i = exp(100 * r_i), guarded by subtracting max(r) before
//     exponentiating (§9: numerically equivalent after the subsequent
//     rescaling, and avoids overflow for moderately positive logits).
//  2. rescaled into [0, 10] by min-max normalization, with the degenerate
//     all-equal case (or a non-finite amplified value) mapped to a
//     uniform 5.0.
//  3. sorted descending by rescaled score.
func AmplifyAndRescale(documents []string, logits []float64) []Item {
	n := len(logits)
	items := make([]Item, n)

	maxLogit := math.Inf(-1)
	for _, r := range logits {
		if r > maxLogit {
			maxLogit = r
		}
	}

	amplified := make([]float64, n)
	degenerate := false
	for i, r := range logits {
		a := math.Exp(AmplificationFactor * (r - maxLogit))
		if math.IsInf(a, 0) || math.IsNaN(a) {
			degenerate = true
		}
		amplified[i] = a
	}

	var minA, maxA float64
	if n > 0 {
		minA, maxA = amplified[0], amplified[0]
		for _, a := range amplified {
			if a < minA {
				minA = a
			}
			if a > maxA {
				maxA = a
			}
		}
	}

	for i := range logits {
		doc := ""
		if i < len(documents) {
			doc = documents[i]
		}
		var score float64
		if degenerate || maxA == minA {
			score = 5.0
		} else {
			score = 10 * (amplified[i] - minA) / (maxA - minA)
		}
		items[i] = Item{Index: i, Document: doc, RawLogit: logits[i], Score: score}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items
}

var _ Client = (*HTTPClient)(nil)
