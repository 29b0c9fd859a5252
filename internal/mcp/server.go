package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/reconcile"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes document search and
// reconciliation tools.
type Server struct {
	coord *coordinator.Coordinator
	job   *reconcile.Job
	mcp   *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies. job may
// be nil, in which case reconciliation_status reports that no job is
// configured.
func NewServer(coord *coordinator.Coordinator, job *reconcile.Job) *Server {
	s := &Server{
		coord: coord,
		job:   job,
	}

	s.mcp = server.NewMCPServer(
		"docindex",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(queryDocumentsTool, s.handleQueryDocuments)
	s.mcp.AddTool(getDocumentTool, s.handleGetDocument)
	s.mcp.AddTool(listCollectionsTool, s.handleListCollections)
	s.mcp.AddTool(reconciliationStatusTool, s.handleReconciliationStatus)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
