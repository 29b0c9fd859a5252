package coordinator

import (
	"context"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

// MetadataStore is the catalog as seen by the coordinator.
type MetadataStore interface {
	EnsureCollection(ctx context.Context, name string, md map[string]string) error
	SaveDocument(ctx context.Context, doc *catalog.Document) error
	GetDocument(ctx context.Context, id string) (*catalog.Document, error)
	GetDocuments(ctx context.Context, ids []string) (map[string]*catalog.Document, error)
	ListDocuments(ctx context.Context, collection string, filter *catalog.Filter) ([]*catalog.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	SetVectorized(ctx context.Context, id string, vectorized bool) error
	ListCollections(ctx context.Context) ([]catalog.Collection, error)
	CollectionStats(ctx context.Context, name string) (*catalog.CollectionStats, error)
}

// Input describes a document to add. An empty ID gets a generated one; an
// empty Collection falls back to the configured default.
type Input struct {
	ID         string       `json:"id"`
	Filename   string       `json:"filename"`
	Collection string       `json:"collection"`
	Content    string       `json:"content"`
	SourcePath string       `json:"source_path,omitempty"`
	Metadata   metadata.Map `json:"metadata"`
}

// Patch changes part of a stored document. Nil fields are left alone.
type Patch struct {
	Filename *string      `json:"filename,omitempty"`
	Content  *string      `json:"content,omitempty"`
	Metadata metadata.Map `json:"metadata,omitempty"`
	// ReplaceMetadata drops keys absent from Metadata instead of merging.
	ReplaceMetadata bool `json:"replace_metadata,omitempty"`
}

// Query is a similarity search request.
type Query struct {
	Collection string       `json:"collection"`
	Text       string       `json:"text"`
	TopK       int          `json:"top_k"`
	Threshold  float64      `json:"threshold"`
	Where      metadata.Map `json:"where,omitempty"`
}

// Hit is one similarity result enriched from the catalog. Unsynced hits
// have no catalog row yet; their Metadata is empty.
type Hit struct {
	ID         string       `json:"id"`
	Collection string       `json:"collection"`
	Filename   string       `json:"filename,omitempty"`
	Content    string       `json:"content"`
	Score      float64      `json:"score"`
	Distance   float64      `json:"distance"`
	Metadata   metadata.Map `json:"metadata"`
	Unsynced   bool         `json:"unsynced,omitempty"`
}

// State is the computed consistency state of one document id.
type State string

const (
	StateAbsent       State = "absent"
	StateMetadataOnly State = "metadata_only"
	StateVectorOnly   State = "vector_only"
	StateFullySynced  State = "fully_synced"
)

// StateReport is the result of State.
type StateReport struct {
	ID         string `json:"id"`
	Collection string `json:"collection,omitempty"`
	State      State  `json:"state"`
	InMetadata bool   `json:"in_metadata"`
	Vectorized bool   `json:"vectorized"`
	InVector   bool   `json:"in_vector"`
}

// Source is a document read from the filesystem source of truth.
type Source struct {
	ID          string
	Collection  string
	Filename    string
	SourcePath  string
	Content     string
	ContentHash string
}

// Outcome describes what SyncFromSource did.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
)
