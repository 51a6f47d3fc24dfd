package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newQueryCmd runs hybrid_search for one (query, access_level) pair and
// prints the assembled context plus its sources.
func newQueryCmd() *cobra.Command {
	var accessLevel int

	c := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a hybrid search query against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
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

			report, err := comps.retriever.Search(ctx, query, accessLevel)
			if err != nil {
				return err
			}

			if !report.Success {
				fmt.Println("no relevant results")
				return nil
			}

			fmt.Println(report.Context)
			fmt.Println("---")
			for _, src := range report.Sources {
				fmt.Printf("[%s] chunk=%d access=%d rerank=%.3f\n",
					src.DocumentTitle, src.ChunkIndex, src.AccessLevel, src.RerankScore)
			}
			fmt.Printf("total_found=%d reranked=%d filtered=%d best_score=%.3f cache=%v time_ms=%d\n",
				report.TotalFound, report.RerankedCount, report.FilteredCount,
				report.BestRelevanceScore, report.FromCache, report.SearchTimeMs)
			return nil
		},
	}

	c.Flags().IntVar(&accessLevel, "access-level", 50, "requester's clearance level")
	return c
}
