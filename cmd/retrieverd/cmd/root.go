// Package cmd provides the CLI commands for retrieverd.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cortexkb/retrieval-engine/internal/config"
)

var (
	configDir string
	embedded  bool
	logLevel  string
)

// NewRootCmd creates the root command for the retrieverd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieverd",
		Short: "Hybrid retrieval engine for access-controlled knowledge bases",
		Long: `retrieverd ingests documents into a hybrid BM25 + vector index and
answers (query, access_level) requests with ranked, reranked, and
context-assembled chunks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "project directory to load .retriever.yaml from (default: cwd)")
	cmd.PersistentFlags().BoolVar(&embedded, "embedded", false, "use the in-process HNSW vector backend instead of Qdrant")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
