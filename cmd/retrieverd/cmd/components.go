package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cortexkb/retrieval-engine/internal/analyzer"
	"github.com/cortexkb/retrieval-engine/internal/bm25index"
	"github.com/cortexkb/retrieval-engine/internal/cache"
	"github.com/cortexkb/retrieval-engine/internal/chunker"
	"github.com/cortexkb/retrieval-engine/internal/config"
	"github.com/cortexkb/retrieval-engine/internal/docparse"
	"github.com/cortexkb/retrieval-engine/internal/embedclient"
	"github.com/cortexkb/retrieval-engine/internal/ingest"
	"github.com/cortexkb/retrieval-engine/internal/keywords"
	"github.com/cortexkb/retrieval-engine/internal/obs"
	"github.com/cortexkb/retrieval-engine/internal/rerankclient"
	"github.com/cortexkb/retrieval-engine/internal/retriever"
	"github.com/cortexkb/retrieval-engine/internal/sink"
	"github.com/cortexkb/retrieval-engine/internal/synonyms"
	"github.com/cortexkb/retrieval-engine/internal/tableproc"
	"github.com/cortexkb/retrieval-engine/internal/vectorpool"
	"github.com/cortexkb/retrieval-engine/internal/vectorstore"
)

// components holds every collaborator process_document and hybrid_search
// are wired against, constructed once per CLI invocation from the layered
// configuration (§ ambient stack, Configuration).
type components struct {
	cfg            *config.Config
	tracerProvider *sdktrace.TracerProvider
	cache          cache.Store
	embed          embedclient.Client
	rerank         rerankclient.Client
	vectors        vectorstore.Store
	pool           *vectorpool.Pool
	bm25           *bm25index.Index
	syn            *synonyms.Expander
	sinkStore      sink.Sink
	parsers        *docparse.Registry
	analyzer       *analyzer.Analyzer
	chunker        *chunker.Chunker
	tableProc      *tableproc.Processor
	keywords       *keywords.Extractor
	metrics        *obs.Metrics
	retriever      *retriever.Retriever
	orchestrator   *ingest.Orchestrator
}

// buildComponents constructs every collaborator named in cfg. embedded, when
// true, swaps the Qdrant-backed vector store for the in-process HNSW
// backend — useful for local runs with no external services (§9 "the
// embedded/test backend").
func buildComponents(ctx context.Context, cfg *config.Config, embedded bool, log zerolog.Logger) (*components, error) {
	c := &components{cfg: cfg}

	c.metrics = obs.NewMetrics(prometheus.DefaultRegisterer)

	tp, err := obs.NewTracerProvider(ctx, "retrieverd")
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	c.tracerProvider = tp

	redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	c.cache = cache.NewRedisStore(rdb, cfg.Cache.L1Size, log)

	embedClient, err := embedclient.New(ctx, embedclient.Config{
		Endpoint:   cfg.Embeddings.LocalURL,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimension,
		Timeout:    30 * time.Second,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	c.embed = embedClient

	rerankClient, err := rerankclient.New(ctx, rerankclient.Config{
		Endpoint: cfg.Reranker.LocalURL,
		Model:    cfg.Reranker.Model,
		Timeout:  30 * time.Second,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("reranker client: %w", err)
	}
	c.rerank = rerankClient

	if embedded {
		c.vectors = vectorstore.NewHNSWStore(cfg.Embeddings.Dimension)
	} else {
		host, port, err := splitHostPort(cfg.VectorDB.URL)
		if err != nil {
			return nil, fmt.Errorf("vector db url: %w", err)
		}
		pool, err := vectorpool.New(ctx, vectorpool.Config{
			MinConnections: cfg.VectorDB.PoolMin,
			MaxConnections: cfg.VectorDB.PoolMax,
		}, vectorstore.NewQdrantFactory(host, port, false), log)
		if err != nil {
			return nil, fmt.Errorf("vector pool: %w", err)
		}
		c.pool = pool
		qdrantStore := vectorstore.NewQdrantStore(pool, cfg.VectorDB.Collection, 5*time.Second)
		if err := qdrantStore.EnsureCollection(ctx, cfg.Embeddings.Dimension); err != nil {
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		c.vectors = qdrantStore
	}

	c.bm25 = bm25index.New(bm25index.DefaultConfig(), log)

	syn, err := synonyms.Load("configs/synonyms_ru.json")
	if err != nil {
		return nil, fmt.Errorf("load synonyms: %w", err)
	}
	c.syn = syn

	durableSink, err := sink.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}
	c.sinkStore = durableSink

	c.parsers = docparse.NewRegistry()
	c.analyzer = analyzer.New(log)
	c.tableProc = tableproc.New(log)
	c.chunker = chunker.New(c.tableProc, log)
	c.keywords = keywords.New(keywords.Config{Timeout: 30 * time.Second}, log)

	c.retriever = retriever.New(retriever.Config{
		RRFConstant:  cfg.Search.RRFConstant,
		TopK:         cfg.Search.TopK,
		RerankTopK:   cfg.Search.RerankTopK,
		VectorWeight: cfg.Search.VectorWeight,
		BM25Weight:   cfg.Search.BM25Weight,
		ResultTTL:    time.Duration(cfg.Cache.ResultTTLSecs) * time.Second,
	}, c.cache, c.embed, c.vectors, c.bm25, c.syn, c.rerank, c.metrics, log)

	c.orchestrator = ingest.New(
		ingest.Config{
			RetryAttempts: cfg.Ingest.RetryAttempts,
			RetryBase:     time.Duration(cfg.Ingest.RetryBaseSecs) * time.Second,
			EmbedWorkers:  4,
		},
		c.parsers, c.analyzer, c.chunker, c.tableProc, c.keywords,
		c.embed, c.vectors, c.sinkStore, c.cache, c.bm25, log,
	)

	return c, nil
}

func (c *components) Close() {
	if c.tracerProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.tracerProvider.Shutdown(shutdownCtx)
		cancel()
	}
	if c.sinkStore != nil {
		c.sinkStore.Close()
	}
	if c.pool != nil {
		_ = c.pool.Close()
	}
	_ = c.embed.Close()
	_ = c.rerank.Close()
	_ = c.vectors.Close()
	_ = c.bm25.Close()
}

func splitHostPort(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}
	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		return host, 6334, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
