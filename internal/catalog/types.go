package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ziadkadry99/docindex/internal/metadata"
)

// Document is the authoritative catalog record for one indexed document.
// Empty Content is stored as NULL.
type Document struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	Collection  string       `json:"collection"`
	Content     string       `json:"content,omitempty"`
	SourcePath  string       `json:"source_path,omitempty"`
	ContentHash string       `json:"content_hash,omitempty"`
	Vectorized  bool         `json:"vectorized"`
	Metadata    metadata.Map `json:"metadata"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUpdated time.Time    `json:"last_updated"`
}

// Collection is a logical namespace of documents.
type Collection struct {
	Name          string            `json:"name"`
	Metadata      map[string]string `json:"metadata"`
	DocumentCount int               `json:"document_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// CollectionStats summarizes the contents of one collection.
type CollectionStats struct {
	Name         string         `json:"name"`
	Documents    int            `json:"documents"`
	Vectorized   int            `json:"vectorized"`
	LastUpdated  *time.Time     `json:"last_updated,omitempty"`
	MetadataKeys map[string]int `json:"metadata_keys"`
}

// Summary is the cheap per-document view used by reconciliation.
type Summary struct {
	ID          string
	Collection  string
	Vectorized  bool
	HasContent  bool
	ContentHash string
	SourcePath  string
}

// Filter narrows ListDocuments.
type Filter struct {
	Vectorized *bool
	// Key and Value match documents whose metadata field Key equals Value
	// under the same type tag. Ignored when Key is empty.
	Key    string
	Value  any
	Limit  int
	Offset int
}

// Export is a portable copy of the whole catalog.
type Export struct {
	Version     int                `json:"version"`
	ExportedAt  time.Time          `json:"exported_at"`
	Collections []CollectionExport `json:"collections"`
}

// CollectionExport holds one collection and all its documents.
type CollectionExport struct {
	Name      string             `json:"name"`
	Metadata  map[string]string  `json:"metadata"`
	Documents []ExportedDocument `json:"documents"`
}

// ExportedDocument keeps metadata in encoded form so value types survive.
type ExportedDocument struct {
	ID          string           `json:"id"`
	Filename    string           `json:"filename"`
	Content     *string          `json:"content"`
	SourcePath  string           `json:"source_path,omitempty"`
	ContentHash string           `json:"content_hash,omitempty"`
	Vectorized  bool             `json:"vectorized"`
	CreatedAt   time.Time        `json:"created_at"`
	LastUpdated time.Time        `json:"last_updated"`
	Metadata    []metadata.Entry `json:"metadata"`
}

// ImportResult reports what ImportAll wrote.
type ImportResult struct {
	Collections int      `json:"collections"`
	Documents   int      `json:"documents"`
	Errors      []string `json:"errors,omitempty"`
}

// HashContent returns the hex SHA-256 of content, as stored in content_hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
