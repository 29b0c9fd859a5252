package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/catalog"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the catalog to JSON, and optionally snapshot the vector store",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a catalog JSON export, and optionally restore a vector snapshot",
	Long: `Imports documents from a JSON export. Existing documents with the same id
are replaced. Without --vectors the imported documents have no vectors
until the next reconciliation run re-embeds them.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().String("vectors", "", "also write a gzip snapshot of the vector store to this path")
	importCmd.Flags().String("vectors", "", "also restore a vector snapshot written by export --vectors")
	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	vectorsPath, _ := cmd.Flags().GetString("vectors")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	exp, err := a.catalog.ExportAll(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling export: %w", err)
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}

	docs := 0
	for _, c := range exp.Collections {
		docs += len(c.Documents)
	}
	fmt.Printf("Exported %d collection(s), %d document(s) to %s\n", len(exp.Collections), docs, args[0])

	if vectorsPath != "" {
		if err := a.vectors.Snapshot(ctx, vectorsPath); err != nil {
			return err
		}
		fmt.Printf("Wrote vector snapshot to %s\n", vectorsPath)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	vectorsPath, _ := cmd.Flags().GetString("vectors")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var exp catalog.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	res, err := a.catalog.ImportAll(ctx, &exp)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d collection(s), %d document(s)\n", res.Collections, res.Documents)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}

	if vectorsPath != "" {
		if err := a.vectors.Restore(ctx, vectorsPath); err != nil {
			return err
		}
		fmt.Printf("Restored vector snapshot from %s\n", vectorsPath)
	} else {
		fmt.Println("Run `docindex reconcile` to embed the imported documents.")
	}
	return nil
}
