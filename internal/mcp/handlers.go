package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/reconcile"
)

// handleQueryDocuments runs a similarity search through the coordinator.
func (s *Server) handleQueryDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	topK := request.GetInt("top_k", 5)
	if topK <= 0 {
		topK = 5
	}

	hits, err := s.coord.QueryBySimilarity(ctx, coordinator.Query{
		Collection: request.GetString("collection", ""),
		Text:       query,
		TopK:       topK,
		Threshold:  request.GetFloat("threshold", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	if len(hits) == 0 {
		return mcp.NewToolResultText("No results found. The collection may be empty; run `docindex reconcile` to ingest configured sources."), nil
	}
	return mcp.NewToolResultText(coordinator.FormatHits(hits)), nil
}

// handleGetDocument fetches one document, backfilling the catalog if needed.
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	doc, err := s.coord.GetDocument(ctx, id, request.GetString("collection", ""))
	if err != nil {
		if errors.Is(err, errdefs.ErrDocumentNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("No document found with id %q.", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get document: %v", err)), nil
	}
	return mcp.NewToolResultText(coordinator.FormatDocument(doc)), nil
}

func (s *Server) handleListCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cols, err := s.coord.ListCollections(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list collections: %v", err)), nil
	}
	if len(cols) == 0 {
		return mcp.NewToolResultText("No collections."), nil
	}

	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(fmt.Sprintf("%s: %d document(s), %d vector(s)\n", c.Name, c.DocumentCount, c.VectorCount))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleReconciliationStatus summarises the reconciliation job.
func (s *Server) handleReconciliationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.job == nil {
		return mcp.NewToolResultText("Reconciliation is not configured."), nil
	}
	return mcp.NewToolResultText(formatStatus(s.job.Status())), nil
}

func formatStatus(st reconcile.Status) string {
	var sb strings.Builder

	if st.Running {
		sb.WriteString(fmt.Sprintf("Running: yes (job %s", st.CurrentJobID))
		if st.Progress != nil {
			sb.WriteString(fmt.Sprintf(", %d/%d repairs", st.Progress.Done, st.Progress.Total))
		}
		sb.WriteString(")\n")
	} else {
		sb.WriteString("Running: no\n")
	}

	if st.LastRun != nil {
		sb.WriteString(fmt.Sprintf("Last run: %s\n", st.LastRun.Format(time.RFC3339)))
	} else {
		sb.WriteString("Last run: never\n")
	}
	if st.NextRun != nil {
		sb.WriteString(fmt.Sprintf("Next run: %s\n", st.NextRun.Format(time.RFC3339)))
	}

	if r := st.LastReport; r != nil {
		sum := r.Summary
		sb.WriteString(fmt.Sprintf("Last result: %s, %d file(s) scanned\n", r.State, r.FilesScanned))
		sb.WriteString(fmt.Sprintf("Discrepancies: %d (repaired %d, failed %d, skipped %d, unresolved %d)\n",
			sum.Discrepancies, sum.Repaired, sum.Failed, sum.Skipped, sum.Unresolved))
		sb.WriteString(fmt.Sprintf("Orphans: %d\n", sum.Orphans))
		for _, o := range r.Orphans {
			sb.WriteString(fmt.Sprintf("  - %s (%s)\n", o.ID, o.Collection))
		}
	}

	return sb.String()
}
