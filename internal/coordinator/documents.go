package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/metadata"
	"github.com/ziadkadry99/docindex/internal/vectordb"
)

// AddDocument stores in as a new document, or replaces the document with
// the same id. The catalog row is committed first with vectorized=false; a
// failure there is returned and nothing is written. Embedding or vector
// store failures leave the document metadata_only and are only logged.
func (c *Coordinator) AddDocument(ctx context.Context, in Input) (*catalog.Document, error) {
	if in.Collection == "" {
		in.Collection = c.opts.DefaultCollection
	}
	if in.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", errdefs.ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	unlock, err := c.lock(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return c.addLocked(ctx, in)
}

func (c *Coordinator) addLocked(ctx context.Context, in Input) (*catalog.Document, error) {
	prev, err := c.getMeta(ctx, in.ID)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return nil, err
	}

	doc := &catalog.Document{
		ID:          in.ID,
		Filename:    in.Filename,
		Collection:  in.Collection,
		Content:     in.Content,
		SourcePath:  in.SourcePath,
		ContentHash: catalog.HashContent(in.Content),
		Metadata:    in.Metadata.Clone(),
	}
	if err := c.saveMeta(ctx, doc); err != nil {
		return nil, err
	}

	log := c.logger.With("doc_id", doc.ID, "collection", doc.Collection)

	if prev != nil && prev.Collection != doc.Collection {
		if _, err := c.deleteVectors(ctx, doc.ID, prev.Collection); err != nil {
			log.Warn("stale vector left in previous collection", "previous", prev.Collection, "error", err)
		}
	}

	if doc.Content == "" {
		if _, err := c.deleteVectors(ctx, doc.ID, doc.Collection); err != nil {
			log.Warn("stale vector left for document without content", "error", err)
		}
		log.Debug("document stored without content, not vectorized")
		return doc, nil
	}

	if err := c.vectorize(ctx, doc); err != nil {
		log.Warn("document stored as metadata_only", "error", err)
		return doc, nil
	}
	log.Debug("document stored in both stores")
	return doc, nil
}

// GetDocument reads id from the catalog. When the catalog has no row the
// vector store is searched (in collection, or everywhere when empty) and a
// hit is written back to the catalog before it is returned.
func (c *Coordinator) GetDocument(ctx context.Context, id, collection string) (*catalog.Document, error) {
	doc, err := c.getMeta(ctx, id)
	if err == nil {
		if collection != "" && doc.Collection != collection {
			return nil, notFound(id)
		}
		return doc, nil
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return nil, err
	}

	unlock, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return c.backfillLocked(ctx, id, collection)
}

// backfillLocked copies a vector-only document into the catalog. It
// re-reads the catalog first so a row written meanwhile wins.
func (c *Coordinator) backfillLocked(ctx context.Context, id, collection string) (*catalog.Document, error) {
	doc, err := c.getMeta(ctx, id)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return nil, err
	}

	vdoc, col, err := c.findVector(ctx, id, collection)
	if err != nil {
		return nil, err
	}
	if vdoc == nil {
		return nil, notFound(id)
	}

	rec, errs := vectordb.DecodeRecord(*vdoc)
	for _, e := range errs {
		c.logger.Warn("dropping malformed vector metadata field", "doc_id", id, "collection", col, "error", e)
	}
	doc = &catalog.Document{
		ID:          id,
		Filename:    rec.Filename,
		Collection:  col,
		Content:     rec.Content,
		SourcePath:  rec.SourcePath,
		ContentHash: rec.ContentHash,
		Vectorized:  true,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
	}
	if doc.ContentHash == "" {
		doc.ContentHash = catalog.HashContent(doc.Content)
	}
	if err := c.saveMeta(ctx, doc); err != nil {
		return nil, err
	}
	c.logger.Info("backfilled catalog from vector store", "doc_id", id, "collection", col)
	return doc, nil
}

// UpdateDocument applies patch to an existing document. A content change
// clears vectorized in the same catalog write and then re-embeds; a
// metadata-only change rewrites the vector record's metadata.
func (c *Coordinator) UpdateDocument(ctx context.Context, id string, patch Patch) (*catalog.Document, error) {
	unlock, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := c.backfillLocked(ctx, id, "")
	if err != nil {
		return nil, err
	}

	contentChanged := patch.Content != nil && *patch.Content != doc.Content
	if patch.Filename != nil {
		doc.Filename = *patch.Filename
	}
	if patch.ReplaceMetadata {
		doc.Metadata = patch.Metadata.Clone()
	} else if len(patch.Metadata) > 0 {
		merged := doc.Metadata.Clone()
		for k, v := range patch.Metadata {
			merged[k] = v
		}
		doc.Metadata = merged
	}
	if contentChanged {
		doc.Content = *patch.Content
		doc.ContentHash = catalog.HashContent(doc.Content)
		doc.Vectorized = false
	}
	wasVectorized := doc.Vectorized

	if err := c.saveMeta(ctx, doc); err != nil {
		return nil, err
	}

	log := c.logger.With("doc_id", doc.ID, "collection", doc.Collection)
	switch {
	case doc.Content == "":
		if _, err := c.deleteVectors(ctx, doc.ID, doc.Collection); err != nil {
			log.Warn("stale vector left for document without content", "error", err)
		}
		if doc.Vectorized {
			if err := c.setVectorized(ctx, doc.ID, false); err != nil {
				return nil, err
			}
			doc.Vectorized = false
		}
	case contentChanged || !wasVectorized:
		if err := c.vectorize(ctx, doc); err != nil {
			log.Warn("updated document left metadata_only", "error", err)
		}
	default:
		if err := c.refreshVectorMetadata(ctx, doc); err != nil {
			log.Warn("vector metadata stale, marking for re-embedding", "error", err)
			if err := c.setVectorized(ctx, doc.ID, false); err != nil {
				return nil, err
			}
			doc.Vectorized = false
		}
	}
	return doc, nil
}

// refreshVectorMetadata rewrites the vector record of doc with its current
// metadata, keeping the stored embedding.
func (c *Coordinator) refreshVectorMetadata(ctx context.Context, doc *catalog.Document) error {
	vdoc, _, err := c.findVector(ctx, doc.ID, doc.Collection)
	if err != nil {
		return err
	}
	if vdoc == nil {
		return fmt.Errorf("vector record missing for %s", doc.ID)
	}
	updated, err := toRecord(doc).ToDocument(vdoc.Embedding)
	if err != nil {
		return err
	}
	return c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
		return c.vec.AddDocuments(ctx, doc.Collection, []vectordb.Document{updated})
	})
}

// DeleteDocument removes id from both stores, vector record first. An id
// missing from either or both stores is not an error.
func (c *Coordinator) DeleteDocument(ctx context.Context, id string) error {
	unlock, err := c.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	log := c.logger.With("doc_id", id)

	n, err := c.deleteVectors(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Debug("delete: not in vector store")
	}

	err = c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		return c.meta.DeleteDocument(ctx, id)
	})
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		log.Debug("delete: not in metadata store")
		if n == 0 {
			log.Info("delete: document absent from both stores")
		}
	case err != nil:
		return err
	default:
		log.Info("document deleted")
	}
	return nil
}

// QueryBySimilarity searches a collection, drops hits scoring below the
// threshold and enriches the rest from the catalog. Hits without a catalog
// row are returned with empty metadata and Unsynced set.
func (c *Coordinator) QueryBySimilarity(ctx context.Context, q Query) ([]Hit, error) {
	if q.Collection == "" {
		q.Collection = c.opts.DefaultCollection
	}
	if q.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", errdefs.ErrInvalidInput)
	}

	var results []vectordb.Result
	err := c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
		var err error
		results, err = c.vec.QueryByText(ctx, q.Collection, q.Text, q.TopK, q.Where)
		return err
	})
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r.Score >= q.Threshold {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return []Hit{}, nil
	}

	ids := make([]string, len(kept))
	for i, r := range kept {
		ids[i] = r.ID
	}
	var docs map[string]*catalog.Document
	err = c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		var err error
		docs, err = c.meta.GetDocuments(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(kept))
	for i, r := range kept {
		hit := Hit{
			ID:         r.ID,
			Collection: r.Collection,
			Content:    r.Content,
			Score:      r.Score,
			Distance:   r.Distance,
		}
		if doc, ok := docs[r.ID]; ok {
			hit.Filename = doc.Filename
			hit.Metadata = doc.Metadata
		} else {
			hit.Metadata = metadata.Map{}
			hit.Unsynced = true
		}
		hits[i] = hit
	}
	return hits, nil
}

// ListDocuments lists catalog rows of a collection.
func (c *Coordinator) ListDocuments(ctx context.Context, collection string, filter *catalog.Filter) ([]*catalog.Document, error) {
	return c.meta.ListDocuments(ctx, collection, filter)
}

// EnsureCollection creates the collection in both stores.
func (c *Coordinator) EnsureCollection(ctx context.Context, name string, md map[string]string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is required", errdefs.ErrInvalidInput)
	}
	err := c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		return c.meta.EnsureCollection(ctx, name, md)
	})
	if err != nil {
		return err
	}
	return c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
		return c.vec.EnsureCollection(ctx, name, md)
	})
}

// CollectionInfo pairs catalog and vector counts for one collection.
type CollectionInfo struct {
	catalog.Collection
	VectorCount int `json:"vector_count"`
}

// ListCollections returns every collection known to either store.
func (c *Coordinator) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	cols, err := c.meta.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	vecCols, err := c.vectorCollections(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cols))
	out := make([]CollectionInfo, 0, len(cols))
	for _, col := range cols {
		seen[col.Name] = true
		n, err := c.vec.Count(ctx, col.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, CollectionInfo{Collection: col, VectorCount: n})
	}
	for _, name := range vecCols {
		if seen[name] {
			continue
		}
		n, err := c.vec.Count(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, CollectionInfo{Collection: catalog.Collection{Name: name, Metadata: map[string]string{}}, VectorCount: n})
	}
	return out, nil
}

// CollectionStats returns catalog statistics for one collection.
func (c *Coordinator) CollectionStats(ctx context.Context, name string) (*catalog.CollectionStats, error) {
	return c.meta.CollectionStats(ctx, name)
}
