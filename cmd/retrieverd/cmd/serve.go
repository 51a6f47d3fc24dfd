package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cortexkb/retrieval-engine/internal/vectorpool"
	"github.com/cortexkb/retrieval-engine/pkg/version"
)

// healthReport is the Health endpoint's body (§6): liveness of the vector
// store and cache store, pool statistics, BM25 state, and model
// identifiers.
type healthReport struct {
	Status         string            `json:"status"`
	Version        string            `json:"version"`
	VectorStore    componentHealth   `json:"vector_store"`
	Cache          componentHealth   `json:"cache"`
	Pool           *vectorpool.Stats `json:"pool,omitempty"`
	BM25           bm25Health        `json:"bm25"`
	EmbeddingModel string            `json:"embedding_model"`
	RerankerModel  string            `json:"reranker_model"`
}

type componentHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type bm25Health struct {
	Initialized   bool `json:"initialized"`
	DocumentCount int  `json:"document_count"`
}

// newHealthHandler builds the /healthz handler (§6): it checks vector-store
// and cache-store liveness directly rather than trusting the last observed
// state, and reports pool and BM25 counters alongside the active model
// identifiers. Status is "degraded" when any dependency check fails, and
// the endpoint then answers 503 with the same JSON body; otherwise it
// answers 200.
func newHealthHandler(comps *components) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := healthReport{
			Status:         "ok",
			Version:        version.Short(),
			EmbeddingModel: comps.embed.ModelName(),
			RerankerModel:  comps.rerank.ModelName(),
			BM25: bm25Health{
				Initialized:   true,
				DocumentCount: comps.bm25.Stats().DocumentCount,
			},
		}

		report.VectorStore = componentHealth{OK: true}
		if err := comps.vectors.Heartbeat(ctx); err != nil {
			report.VectorStore = componentHealth{OK: false, Error: err.Error()}
			report.Status = "degraded"
		}

		report.Cache = componentHealth{OK: true}
		if err := comps.cache.Ping(ctx); err != nil {
			report.Cache = componentHealth{OK: false, Error: err.Error()}
			report.Status = "degraded"
		}

		if comps.pool != nil {
			stats := comps.pool.Stats()
			report.Pool = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// newServeCmd wires every collaborator and blocks serving a health/metrics
// endpoint. It pre-warms the connection pool to its minimum size and loads
// the synonym dictionary; the BM25 index starts empty and is built lazily
// by the first query that finds it empty. The retrieval and
// ingest operations themselves stay off an HTTP surface (an external
// task queue or RPC layer fronting them is out of scope); this command
// exists so a process supervisor has something long-running to hold onto.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the health/metrics endpoint and build all singletons",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			comps, err := buildComponents(ctx, cfg, embedded, log)
			if err != nil {
				return err
			}
			defer comps.Close()

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", newHealthHandler(comps))
			mux.Handle("/metrics", promhttp.Handler())

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			log.Info().Int("port", cfg.Server.Port).Msg("serving")
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}
}
