package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search documents by similarity",
	Long: `Embeds the query text, searches one collection of the vector store and
enriches every hit with its catalog metadata. Hits the catalog has not
seen yet are shown as unsynced.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringP("collection", "c", "", "collection to search (default from config)")
	queryCmd.Flags().Int("top-k", 5, "maximum number of results")
	queryCmd.Flags().Float64("threshold", 0, "minimum score between 0 and 1")
	queryCmd.Flags().StringToString("where", nil, "exact metadata match, key=value (repeatable)")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	collection, _ := cmd.Flags().GetString("collection")
	topK, _ := cmd.Flags().GetInt("top-k")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	where, _ := cmd.Flags().GetStringToString("where")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q := coordinator.Query{
		Collection: collection,
		Text:       args[0],
		TopK:       topK,
		Threshold:  threshold,
	}
	if len(where) > 0 {
		q.Where = make(metadata.Map, len(where))
		for k, v := range where {
			q.Where[k] = metadata.Infer(v)
		}
	}

	hits, err := a.coord.QueryBySimilarity(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printJSON(hits)
	}
	fmt.Println(coordinator.FormatHits(hits))
	return nil
}
