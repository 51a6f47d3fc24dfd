package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cortexkb/retrieval-engine/internal/ingest"
)

// newIngestCmd drives one document through process_document from the
// command line, for operational backfills and one-off re-ingests.
func newIngestCmd() *cobra.Command {
	var accessLevel int
	var docID string
	var title string

	c := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a single document into the hybrid index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()

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

			if docID == "" {
				docID = uuid.NewString()
			}
			if title == "" {
				title = filepath.Base(path)
			}

			report, err := comps.orchestrator.ProcessDocument(ctx, ingest.Task{
				DocumentID:    docID,
				FilePath:      path,
				AccessLevel:   accessLevel,
				DocumentTitle: title,
			})
			if err != nil {
				return err
			}

			fmt.Printf("document_id=%s type=%s chunks=%d semantic_keywords=%v technical_keywords=%v total_ms=%d\n",
				report.DocumentID, report.DocumentType, report.ChunkCount,
				report.SemanticKeywords, report.TechnicalKeywords, report.TotalDurationMs)
			return nil
		},
	}

	c.Flags().IntVar(&accessLevel, "access-level", 50, "minimum clearance level required to retrieve this document's chunks")
	c.Flags().StringVar(&docID, "id", "", "document id (defaults to a generated uuid)")
	c.Flags().StringVar(&title, "title", "", "document title (defaults to the file name)")
	return c
}
