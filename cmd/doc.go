package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Add, inspect, update and remove documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a document from a file or from --content",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDocAdd,
}

var docGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show a document, backfilling the catalog from the vector store if needed",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocGet,
}

var docUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change a document's filename, content or metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocUpdate,
}

var docRmCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"delete"},
	Short:   "Delete a document from both stores",
	Args:    cobra.ExactArgs(1),
	RunE:    runDocRm,
}

var docLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List catalog documents",
	Args:  cobra.NoArgs,
	RunE:  runDocLs,
}

var docStateCmd = &cobra.Command{
	Use:   "state [id]",
	Short: "Show whether a document is in the catalog, the vector store, or both",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocState,
}

func init() {
	docAddCmd.Flags().String("id", "", "document id (generated when empty)")
	docAddCmd.Flags().StringP("collection", "c", "", "collection (default from config)")
	docAddCmd.Flags().String("filename", "", "filename (defaults to the file's base name)")
	docAddCmd.Flags().String("content", "", "document content, instead of a file")
	docAddCmd.Flags().StringToStringP("meta", "m", nil, "metadata key=value (repeatable)")

	docGetCmd.Flags().StringP("collection", "c", "", "collection to search when the catalog has no row")
	docGetCmd.Flags().Bool("json", false, "output as JSON")

	docUpdateCmd.Flags().String("filename", "", "new filename")
	docUpdateCmd.Flags().String("content-file", "", "read new content from this file")
	docUpdateCmd.Flags().StringToStringP("meta", "m", nil, "metadata key=value to set (repeatable)")
	docUpdateCmd.Flags().Bool("replace-meta", false, "replace all metadata instead of merging")

	docLsCmd.Flags().StringP("collection", "c", "", "collection (all when empty)")
	docLsCmd.Flags().String("key", "", "metadata key to match")
	docLsCmd.Flags().String("value", "", "metadata value to match, typed like --meta")
	docLsCmd.Flags().String("vectorized", "", "filter on vectorized state: true or false")
	docLsCmd.Flags().Int("limit", 0, "maximum number of documents")
	docLsCmd.Flags().Bool("json", false, "output as JSON")

	docStateCmd.Flags().StringP("collection", "c", "", "collection hint")

	docCmd.AddCommand(docAddCmd, docGetCmd, docUpdateCmd, docRmCmd, docLsCmd, docStateCmd)
	rootCmd.AddCommand(docCmd)
}

func parseMeta(kv map[string]string) metadata.Map {
	if len(kv) == 0 {
		return nil
	}
	m := make(metadata.Map, len(kv))
	for k, v := range kv {
		m[k] = metadata.Infer(v)
	}
	return m
}

func runDocAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	collection, _ := cmd.Flags().GetString("collection")
	filename, _ := cmd.Flags().GetString("filename")
	content, _ := cmd.Flags().GetString("content")
	meta, _ := cmd.Flags().GetStringToString("meta")

	in := coordinator.Input{
		ID:         id,
		Filename:   filename,
		Collection: collection,
		Content:    content,
		Metadata:   parseMeta(meta),
	}
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		in.Content = string(data)
		in.SourcePath = abs
		if in.Filename == "" {
			in.Filename = filepath.Base(args[0])
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.coord.AddDocument(cmd.Context(), in)
	if err != nil {
		return err
	}
	state, err := a.coord.State(cmd.Context(), doc.ID, doc.Collection)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s to %s (%s)\n", doc.ID, doc.Collection, state.State)
	return nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	collection, _ := cmd.Flags().GetString("collection")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.coord.GetDocument(cmd.Context(), args[0], collection)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(doc)
	}
	fmt.Print(coordinator.FormatDocument(doc))
	return nil
}

func runDocUpdate(cmd *cobra.Command, args []string) error {
	var patch coordinator.Patch
	if cmd.Flags().Changed("filename") {
		name, _ := cmd.Flags().GetString("filename")
		patch.Filename = &name
	}
	if path, _ := cmd.Flags().GetString("content-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		content := string(data)
		patch.Content = &content
	}
	meta, _ := cmd.Flags().GetStringToString("meta")
	patch.Metadata = parseMeta(meta)
	patch.ReplaceMetadata, _ = cmd.Flags().GetBool("replace-meta")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.coord.UpdateDocument(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s (vectorized: %t)\n", doc.ID, doc.Vectorized)
	return nil
}

func runDocRm(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.DeleteDocument(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runDocLs(cmd *cobra.Command, args []string) error {
	collection, _ := cmd.Flags().GetString("collection")
	key, _ := cmd.Flags().GetString("key")
	value, _ := cmd.Flags().GetString("value")
	vectorized, _ := cmd.Flags().GetString("vectorized")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	filter := &catalog.Filter{Key: key, Limit: limit}
	if key != "" {
		filter.Value = metadata.Infer(value)
	}
	if vectorized != "" {
		b, err := strconv.ParseBool(vectorized)
		if err != nil {
			return fmt.Errorf("--vectorized must be true or false")
		}
		filter.Vectorized = &b
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.coord.ListDocuments(cmd.Context(), collection, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		if docs == nil {
			docs = []*catalog.Document{}
		}
		return printJSON(docs)
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	for _, d := range docs {
		mark := " "
		if !d.Vectorized {
			mark = "!"
		}
		fmt.Printf("%s %s  %-12s %s\n", mark, d.ID, d.Collection, truncate(d.Filename, 60))
	}
	return nil
}

func runDocState(cmd *cobra.Command, args []string) error {
	collection, _ := cmd.Flags().GetString("collection")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.coord.State(cmd.Context(), args[0], collection)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (catalog: %t, vectorized: %t, vector store: %t)\n",
		rep.ID, rep.State, rep.InMetadata, rep.Vectorized, rep.InVector)
	return nil
}
