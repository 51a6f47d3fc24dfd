package rerankclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAmplifyAndRescaleOrdersDescending(t *testing.T) {
	docs := []string{"a", "b", "c"}
	logits := []float64{0.1, 0.9, 0.5}
	items := AmplifyAndRescale(docs, logits)
	require.Len(t, items, 3)
	require.Equal(t, "b", items[0].Document)
	require.Equal(t, "c", items[1].Document)
	require.Equal(t, "a", items[2].Document)
	require.InDelta(t, 10.0, items[0].Score, 1e-9)
	require.InDelta(t, 0.0, items[2].Score, 1e-9)
}

func TestAmplifyAndRescaleDegenerateAllEqualMapsToFive(t *testing.T) {
	docs := []string{"a", "b"}
	logits := []float64{0.42, 0.42}
	items := AmplifyAndRescale(docs, logits)
	for _, it := range items {
		require.InDelta(t, 5.0, it.Score, 1e-9)
	}
}

func TestAmplifyAndRescaleGuardsAgainstOverflow(t *testing.T) {
	// Large positive logits would overflow exp(100*r) without the
	// max-subtraction guard.
	docs := []string{"a", "b"}
	logits := []float64{50.0, 10.0}
	items := AmplifyAndRescale(docs, logits)
	for _, it := range items {
		require.False(t, isNaNOrInf(it.Score))
	}
	require.Equal(t, "a", items[0].Document)
}

func isNaNOrInf(f float64) bool {
	return f != f || f > 1e300 || f < -1e300
}

func newFakeRerankServer(t *testing.T, logits []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(rerankResponse{Logits: logits})
	}))
}

func TestRerankTruncatesToTopK(t *testing.T) {
	srv := newFakeRerankServer(t, []float64{0.1, 0.9, 0.5, 0.2})
	defer srv.Close()

	client, err := New(context.Background(), Config{Endpoint: srv.URL}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	items, err := client.Rerank(context.Background(), "query", []string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "b", items[0].Document)
	require.Equal(t, "c", items[1].Document)
}
