package mcp

import "github.com/mark3labs/mcp-go/mcp"

// queryDocumentsTool defines the query_documents MCP tool.
var queryDocumentsTool = mcp.NewTool("query_documents",
	mcp.WithDescription("Search indexed documents semantically. Returns the closest documents with their score and catalog metadata."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithString("collection",
		mcp.Description("Collection to search (defaults to the configured default collection)"),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithNumber("threshold",
		mcp.Description("Minimum score between 0 and 1 (default 0)"),
	),
)

// getDocumentTool defines the get_document MCP tool.
var getDocumentTool = mcp.NewTool("get_document",
	mcp.WithDescription("Get a document by id, including its content and typed metadata."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Document id"),
	),
	mcp.WithString("collection",
		mcp.Description("Collection hint used when the document is only in the vector store"),
	),
)

// listCollectionsTool defines the list_collections MCP tool.
var listCollectionsTool = mcp.NewTool("list_collections",
	mcp.WithDescription("List collections with their document and vector counts."),
)

// reconciliationStatusTool defines the reconciliation_status MCP tool.
var reconciliationStatusTool = mcp.NewTool("reconciliation_status",
	mcp.WithDescription("Report whether a reconciliation run is in progress, when the last one finished, what it found, and when the next is scheduled."),
)
