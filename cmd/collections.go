package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections [name]",
	Short: "List collections, or show statistics for one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollections,
}

func init() {
	collectionsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		stats, err := a.coord.CollectionStats(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}
		fmt.Printf("Collection: %s\n", stats.Name)
		fmt.Printf("  Documents:      %d\n", stats.Documents)
		fmt.Printf("  Vectorized:     %d\n", stats.Vectorized)
		fmt.Printf("  Not vectorized: %d\n", stats.Documents-stats.Vectorized)
		for _, k := range slices.Sorted(maps.Keys(stats.MetadataKeys)) {
			fmt.Printf("  key %-12s %d\n", k, stats.MetadataKeys[k])
		}
		return nil
	}

	cols, err := a.coord.ListCollections(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cols)
	}
	if len(cols) == 0 {
		fmt.Println("No collections.")
		return nil
	}
	fmt.Printf("%-24s %10s %10s\n", "NAME", "DOCUMENTS", "VECTORS")
	for _, c := range cols {
		fmt.Printf("%-24s %10d %10d\n", c.Name, c.DocumentCount, c.VectorCount)
	}
	return nil
}
