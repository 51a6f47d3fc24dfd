package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractTechnicalTermsFindsLanguagesAndFrameworks(t *testing.T) {
	terms := ExtractTechnicalTerms("Сервис написан на Python с использованием Django и PostgreSQL.")
	require.Contains(t, terms, "python")
	require.Contains(t, terms, "django")
	require.Contains(t, terms, "postgresql")
}

func TestExtractTechnicalTermsKeepsShortUppercaseAcronym(t *testing.T) {
	terms := ExtractTechnicalTerms("Используется REST API поверх HTTP.")
	require.Contains(t, terms, "REST")
	require.Contains(t, terms, "HTTP")
}

func TestExtractSkipsShortText(t *testing.T) {
	e := New(Config{}, zerolog.Nop())
	res := e.Extract(context.Background(), "коротко")
	require.Empty(t, res.Semantic)
}

func TestExtractDegradesToTechnicalOnlyWithoutEndpoint(t *testing.T) {
	e := New(Config{}, zerolog.Nop())
	text := "Развернутый текст достаточной длины про использование Docker и Kubernetes в продакшене компании."
	res := e.Extract(context.Background(), text)
	require.Empty(t, res.Semantic)
	require.Contains(t, res.Technical, "docker")
}

func TestExtractSemanticFiltersLowScoreAndStopWords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(keyphraseResponse{Keywords: []struct {
			Keyword string  `json:"keyword"`
			Score   float64 `json:"score"`
		}{
			{Keyword: "копирайтер", Score: 0.8},
			{Keyword: "это", Score: 0.9},
			{Keyword: "12", Score: 0.9},
			{Keyword: "слабое совпадение", Score: 0.1},
		}})
	}))
	defer srv.Close()

	e := New(Config{Endpoint: srv.URL}, zerolog.Nop())
	text := "Развернутый текст достаточной длины про обязанности копирайтера в компании на постоянной основе."
	res := e.Extract(context.Background(), text)
	require.Contains(t, res.Semantic, "копирайтер")
	require.NotContains(t, res.Semantic, "это")
	require.NotContains(t, res.Semantic, "12")
	require.NotContains(t, res.Semantic, "слабое совпадение")
}

func TestDocumentSummaryAggregatesByFrequency(t *testing.T) {
	results := []Result{
		{Semantic: []string{"договор", "поставка"}, Technical: []string{"python"}},
		{Semantic: []string{"договор"}, Technical: []string{"python", "docker"}},
	}
	summary := DocumentSummary(results)
	require.Equal(t, "договор", summary.Semantic[0])
	require.Equal(t, "python", summary.Technical[0])
}
