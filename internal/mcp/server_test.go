package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/db"
	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/metadata"
	"github.com/ziadkadry99/docindex/internal/reconcile"
	"github.com/ziadkadry99/docindex/internal/vectordb"
)

func newTestServer(t *testing.T) (*Server, *coordinator.Coordinator) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	embedder := embeddings.NewHashEmbedder(32)
	meta := catalog.NewStore(database, nil)
	coord := coordinator.New(meta, vectordb.NewChromemStore(embedder, nil), embedder, coordinator.DefaultOptions())
	job := reconcile.NewJob(coord, meta, nil, reconcile.NewStore(database), reconcile.Options{})
	return NewServer(coord, job), coord
}

func seed(t *testing.T, coord *coordinator.Coordinator) {
	t.Helper()
	ctx := context.Background()
	docs := []coordinator.Input{
		{ID: "a", Filename: "intro.md", Collection: "docs", Content: "an introduction to the index", Metadata: metadata.Map{"lang": "en"}},
		{ID: "b", Filename: "ops.md", Collection: "docs", Content: "operating the reconciliation job"},
	}
	for _, in := range docs {
		if _, err := coord.AddDocument(ctx, in); err != nil {
			t.Fatalf("AddDocument(%s): %v", in.ID, err)
		}
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"query_documents", queryDocumentsTool, "query_documents"},
		{"get_document", getDocumentTool, "get_document"},
		{"list_collections", listCollectionsTool, "list_collections"},
		{"reconciliation_status", reconciliationStatusTool, "reconciliation_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv, coord := newTestServer(t)
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.coord != coord {
		t.Error("coordinator not set correctly")
	}
}

func TestHandleQueryDocuments(t *testing.T) {
	srv, coord := newTestServer(t)
	seed(t, coord)
	ctx := context.Background()

	t.Run("basic query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"query":      "introduction",
			"collection": "docs",
			"top_k":      1,
		}

		result, err := srv.handleQueryDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "Found 1 result(s)") {
			t.Errorf("expected one result, got:\n%s", text)
		}
	})

	t.Run("threshold filters everything", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"query":      "zzz unrelated",
			"collection": "docs",
			"threshold":  1.0,
		}

		result, err := srv.handleQueryDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("empty results should not be an error: %v", result.Content)
		}
		if !strings.HasPrefix(resultText(t, result), "No results found") {
			t.Errorf("expected no results, got %q", resultText(t, result))
		}
	})

	t.Run("unknown collection", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"query":      "anything",
			"collection": "nope",
		}

		result, err := srv.handleQueryDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("querying an empty collection should not be an error")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleQueryDocuments(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})
}

func TestHandleGetDocument(t *testing.T) {
	srv, coord := newTestServer(t)
	seed(t, coord)
	ctx := context.Background()

	t.Run("existing document", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"id": "a"}

		result, err := srv.handleGetDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		for _, want := range []string{"ID: a", "Collection: docs", "lang=en", "an introduction"} {
			if !strings.Contains(text, want) {
				t.Errorf("result missing %q:\n%s", want, text)
			}
		}
	})

	t.Run("missing document", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"id": "nonexistent"}

		result, err := srv.handleGetDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing document")
		}
	})

	t.Run("missing id param", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleGetDocument(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing id")
		}
	})
}

func TestHandleListCollections(t *testing.T) {
	srv, coord := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListCollections(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resultText(t, result); got != "No collections." {
		t.Errorf("expected no collections, got %q", got)
	}

	seed(t, coord)
	result, err = srv.handleListCollections(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resultText(t, result); !strings.Contains(got, "docs: 2 document(s), 2 vector(s)") {
		t.Errorf("unexpected listing:\n%s", got)
	}
}

func TestHandleReconciliationStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleReconciliationStatus(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resultText(t, result); !strings.Contains(got, "Last run: never") {
		t.Errorf("expected no previous run, got:\n%s", got)
	}

	if _, err := srv.job.RunOnce(ctx, reconcile.TriggerManual); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	result, err = srv.handleReconciliationStatus(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := resultText(t, result)
	for _, want := range []string{"Running: no", "Last result: completed", "Discrepancies: 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
}

func TestHandleReconciliationStatusWithoutJob(t *testing.T) {
	srv := NewServer(nil, nil)
	result, err := srv.handleReconciliationStatus(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Error("missing job should not be a tool error")
	}
}

func TestFormatStatus(t *testing.T) {
	next := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	got := formatStatus(reconcile.Status{
		Running:      true,
		CurrentJobID: "j1",
		Progress:     &reconcile.Progress{Total: 10, Done: 4},
		NextRun:      &next,
	})
	for _, want := range []string{"Running: yes (job j1, 4/10 repairs)", "Next run: 2026-01-02T03:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}
}
