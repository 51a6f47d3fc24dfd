package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 30, cfg.Search.TopK)
	assert.Equal(t, 10, cfg.Search.RerankTopK)

	assert.Equal(t, 2, cfg.VectorDB.PoolMin)
	assert.Equal(t, 10, cfg.VectorDB.PoolMax)
	assert.Equal(t, 16, cfg.VectorDB.HNSWM)
	assert.Equal(t, 200, cfg.VectorDB.EFConstruction)
	assert.Equal(t, 100, cfg.VectorDB.EFSearch)
	assert.Equal(t, "cosine", cfg.VectorDB.HNSWSpace)

	assert.Equal(t, 1024, cfg.Embeddings.Dimension)
	assert.Equal(t, 512, cfg.Embeddings.MaxSeqLength)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 0.30, cfg.Embeddings.RussianRatio)

	assert.Equal(t, 512, cfg.Reranker.MaxLength)

	assert.Equal(t, 3600, cfg.Cache.ResultTTLSecs)
	assert.Equal(t, 7200, cfg.Cache.BM25TTLSecs)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesProjectYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  vector_weight: 0.5
  bm25_weight: 0.5
  top_k: 50
vector_db:
  collection: custom_docs
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".retriever.yaml"), []byte(yamlContent), 0644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, 0.5, cfg.Search.BM25Weight)
	assert.Equal(t, 50, cfg.Search.TopK)
	assert.Equal(t, "custom_docs", cfg.VectorDB.Collection)
	// Untouched defaults survive the merge.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestLoadPrefersYmlWhenYamlAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".retriever.yml"), []byte("server:\n  port: 9000\n"), 0644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestEnvOverridesBeatProjectYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".retriever.yaml"), []byte("vector_db:\n  url: http://from-yaml:6333\n"), 0644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CHROMADB_URL", "http://from-env:6333")
	t.Setenv("EMBEDDING_DIMENSION", "768")
	t.Setenv("POSTGRES_DSN", "postgres://env/retriever")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:6333", cfg.VectorDB.URL)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, "postgres://env/retriever", cfg.Postgres.DSN)
}

func TestValidateRejectsOutOfRangeWeights(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedPoolBounds(t *testing.T) {
	cfg := NewConfig()
	cfg.VectorDB.PoolMin = 10
	cfg.VectorDB.PoolMax = 2
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestGetUserConfigPathRespectsXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	assert.Equal(t, filepath.Join(xdg, "retriever", "config.yaml"), GetUserConfigPath())
}

func TestFindProjectRootStopsAtGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.TopK = 42

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 42, loaded.Search.TopK)
}
