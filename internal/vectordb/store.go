package vectordb

import (
	"context"

	"github.com/ziadkadry99/docindex/internal/metadata"
)

// Store is the vector side of the document index: named collections of
// embedded documents. Missing collections behave as empty ones.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, md map[string]string) error

	// AddDocuments adds or replaces documents. Documents without an
	// embedding are embedded from their content.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// QueryByText returns up to topK nearest documents, most similar first.
	QueryByText(ctx context.Context, collection, text string, topK int, where metadata.Map) ([]Result, error)

	// GetByIDs returns the documents that exist among ids.
	GetByIDs(ctx context.Context, collection string, ids []string) ([]Document, error)

	// DeleteByIDs removes the given ids and reports how many existed.
	DeleteByIDs(ctx context.Context, collection string, ids []string) (int, error)

	// ListIDs returns every id in the collection, sorted.
	ListIDs(ctx context.Context, collection string) ([]string, error)

	// ListCollections returns the collection names, sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
