package vectordb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

const defaultTopK = 10

// ChromemStore implements Store using chromem-go.
type ChromemStore struct {
	// mu serializes writers; collection handles returned by chromem share
	// their document maps.
	mu        sync.RWMutex
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
	dir       string
	logger    *slog.Logger

	// dims is the embedding width, used to enumerate ids without the
	// embedder. Zero until known.
	dims int
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder, logger *slog.Logger) *ChromemStore {
	return &ChromemStore{
		db:        chromem.NewDB(),
		embedFunc: embeddings.ToChromemFunc(embedder),
		dims:      embedder.Dimensions(),
		logger:    logging.OrDiscard(logger).With("store", errdefs.StoreVector),
	}
}

// NewPersistentChromemStore opens (or creates) a ChromemStore persisted
// under dir with gzip compression.
func NewPersistentChromemStore(dir string, embedder embeddings.Embedder, logger *slog.Logger) (*ChromemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", dir, err)
	}
	return &ChromemStore{
		db:        db,
		embedFunc: embeddings.ToChromemFunc(embedder),
		dims:      embedder.Dimensions(),
		dir:       dir,
		logger:    logging.OrDiscard(logger).With("store", errdefs.StoreVector),
	}, nil
}

// collection returns a handle bound to our embedding function, or nil.
// Collections loaded from disk carry no embedding function of their own.
func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, s.embedFunc)
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, md map[string]string) error {
	if name == "" {
		return s.wrap("ensure_collection", name, "", fmt.Errorf("%w: collection name is required", errdefs.ErrInvalidInput))
	}
	_, err := bounded(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.GetOrCreateCollection(name, md, s.embedFunc)
		return struct{}{}, err
	})
	return s.wrap("ensure_collection", name, "", err)
}

func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return s.wrap("add", collection, "", fmt.Errorf("%w: document id is required", errdefs.ErrInvalidInput))
		}
		chromDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		}
	}

	_, err := bounded(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc)
		if err != nil {
			return struct{}{}, fmt.Errorf("get collection: %w", err)
		}
		if err := col.AddDocuments(ctx, chromDocs, runtime.NumCPU()); err != nil {
			return struct{}{}, err
		}
		if s.dims == 0 {
			for _, d := range chromDocs {
				if len(d.Embedding) > 0 {
					s.dims = len(d.Embedding)
					break
				}
			}
		}
		return struct{}{}, nil
	})
	return s.wrap("add", collection, firstID(docs), err)
}

func (s *ChromemStore) QueryByText(ctx context.Context, collection, text string, topK int, where metadata.Map) ([]Result, error) {
	if text == "" {
		return nil, s.wrap("query", collection, "", fmt.Errorf("%w: query text is required", errdefs.ErrInvalidInput))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	whereClause, err := WhereClause(where)
	if err != nil {
		return nil, s.wrap("query", collection, "", fmt.Errorf("%w: %w", errdefs.ErrInvalidInput, err))
	}

	results, err := bounded(ctx, func() ([]chromem.Result, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		col := s.collection(collection)
		if col == nil {
			return nil, nil
		}
		// chromem-go requires nResults <= collection size.
		count := col.Count()
		if count == 0 {
			return nil, nil
		}
		return col.Query(ctx, text, min(topK, count), whereClause, nil)
	})
	if err != nil {
		return nil, s.wrap("query", collection, "", err)
	}

	out := make([]Result, len(results))
	for i, r := range results {
		d := DistanceFromSimilarity(r.Similarity)
		out[i] = Result{
			ID:         r.ID,
			Collection: collection,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Distance:   d,
			Score:      Score(d),
		}
	}
	return out, nil
}

func (s *ChromemStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]Document, error) {
	docs, err := bounded(ctx, func() ([]Document, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		col := s.collection(collection)
		if col == nil {
			return nil, nil
		}
		var out []Document
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			doc, err := col.GetByID(ctx, id)
			if err != nil {
				// chromem-go reports a missing id as a plain error.
				continue
			}
			out = append(out, Document{ID: doc.ID, Content: doc.Content, Embedding: doc.Embedding, Metadata: doc.Metadata})
		}
		return out, nil
	})
	return docs, s.wrap("get", collection, singleID(ids), err)
}

func (s *ChromemStore) DeleteByIDs(ctx context.Context, collection string, ids []string) (int, error) {
	n, err := bounded(ctx, func() (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		col := s.collection(collection)
		if col == nil {
			return 0, nil
		}
		var existing []string
		for _, id := range ids {
			if _, err := col.GetByID(ctx, id); err == nil {
				existing = append(existing, id)
			}
		}
		if len(existing) == 0 {
			return 0, nil
		}
		if err := col.Delete(ctx, nil, nil, existing...); err != nil {
			return 0, err
		}
		return len(existing), nil
	})
	return n, s.wrap("delete", collection, singleID(ids), err)
}

// ListIDs returns every id in collection. chromem-go has no listing call,
// so the whole collection is ranked against a fixed unit vector; the
// embedder is not involved.
func (s *ChromemStore) ListIDs(ctx context.Context, collection string) ([]string, error) {
	ids, err := bounded(ctx, func() ([]string, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		col := s.collection(collection)
		if col == nil {
			return nil, nil
		}
		count := col.Count()
		if count == 0 {
			return nil, nil
		}
		if s.dims == 0 {
			return nil, errors.New("embedding dimensions unknown, cannot enumerate ids")
		}
		results, err := col.QueryEmbedding(ctx, unitVector(s.dims), count, nil, nil)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		sort.Strings(ids)
		return ids, nil
	})
	return ids, s.wrap("list_ids", collection, "", err)
}

func unitVector(dims int) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	return v
}

func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.wrap("list_collections", "", "", err)
	}
	s.mu.RLock()
	cols := s.db.ListCollections()
	s.mu.RUnlock()

	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, s.wrap("count", collection, "", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collection(collection)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Snapshot writes every collection to a single gzip file.
func (s *ChromemStore) Snapshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	_, err := bounded(ctx, func() (struct{}, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return struct{}{}, s.db.ExportToFile(path, true, "")
	})
	return s.wrap("snapshot", "", "", err)
}

// Restore loads collections from a snapshot written by Snapshot, replacing
// collections with the same name.
func (s *ChromemStore) Restore(ctx context.Context, path string) error {
	_, err := bounded(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return struct{}{}, s.db.ImportFromFile(path, "")
	})
	return s.wrap("restore", "", "", err)
}

// Dir returns the persistence directory, empty for in-memory stores.
func (s *ChromemStore) Dir() string {
	return s.dir
}

func (s *ChromemStore) wrap(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = errdefs.Unavailable(err)
	}
	return errdefs.Wrap(errdefs.StoreVector, op, collection, id, err)
}

// bounded runs fn and returns early when ctx ends first. fn keeps running
// in the background and its result is discarded.
func bounded[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func firstID(docs []Document) string {
	if len(docs) == 1 {
		return docs[0].ID
	}
	return ""
}

func singleID(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}
