package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// State computes where id currently lives. collection narrows the vector
// lookup when the catalog has no row.
func (c *Coordinator) State(ctx context.Context, id, collection string) (*StateReport, error) {
	rep := &StateReport{ID: id, Collection: collection}

	doc, err := c.getMeta(ctx, id)
	switch {
	case err == nil:
		rep.InMetadata = true
		rep.Vectorized = doc.Vectorized
		rep.Collection = doc.Collection
	case errors.Is(err, errdefs.ErrNotFound):
	default:
		return nil, err
	}

	vdoc, col, err := c.findVector(ctx, id, rep.Collection)
	if err != nil {
		return nil, err
	}
	if vdoc != nil {
		rep.InVector = true
		if rep.Collection == "" {
			rep.Collection = col
		}
	}

	switch {
	case rep.InMetadata && rep.Vectorized && rep.InVector:
		rep.State = StateFullySynced
	case rep.InMetadata:
		rep.State = StateMetadataOnly
	case rep.InVector:
		rep.State = StateVectorOnly
	default:
		rep.State = StateAbsent
	}
	return rep, nil
}

// SyncFromSource ingests a filesystem document when the catalog lacks it
// or holds different content. Existing user metadata is kept. The check
// runs under the id lock.
func (c *Coordinator) SyncFromSource(ctx context.Context, src Source) (*catalog.Document, Outcome, error) {
	unlock, err := c.lock(ctx, src.ID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	if src.ContentHash == "" {
		src.ContentHash = catalog.HashContent(src.Content)
	}

	existing, err := c.getMeta(ctx, src.ID)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return nil, "", err
	}

	outcome := OutcomeCreated
	in := Input{
		ID:         src.ID,
		Filename:   src.Filename,
		Collection: src.Collection,
		Content:    src.Content,
		SourcePath: src.SourcePath,
	}
	if existing != nil {
		if existing.Collection != src.Collection {
			return existing, "", fmt.Errorf("%w: %s is in collection %s, source maps it to %s",
				errdefs.ErrIntegrityViolation, src.ID, existing.Collection, src.Collection)
		}
		if existing.ContentHash == src.ContentHash {
			return existing, OutcomeUnchanged, nil
		}
		outcome = OutcomeUpdated
		in.Metadata = existing.Metadata
	}

	doc, err := c.addLocked(ctx, in)
	if err != nil {
		return nil, "", err
	}
	return doc, outcome, nil
}

// Reembed writes the embedding of a catalog document and marks it
// vectorized. A document without content is marked unvectorized and any
// stale vector record is removed. Unlike AddDocument, failures are returned.
func (c *Coordinator) Reembed(ctx context.Context, id string) (*catalog.Document, error) {
	unlock, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := c.getMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	if doc.Content == "" {
		if _, err := c.deleteVectors(ctx, id, doc.Collection); err != nil {
			return nil, err
		}
		if doc.Vectorized {
			if err := c.setVectorized(ctx, id, false); err != nil {
				return nil, err
			}
			doc.Vectorized = false
		}
		return doc, nil
	}

	if doc.Vectorized {
		// A crash mid-repair must leave vectorized=false.
		if err := c.setVectorized(ctx, id, false); err != nil {
			return nil, err
		}
		doc.Vectorized = false
	}
	if err := c.vectorize(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Backfill copies a vector-only document into the catalog. It is a no-op
// returning the existing row when the catalog already has one.
func (c *Coordinator) Backfill(ctx context.Context, id, collection string) (*catalog.Document, error) {
	unlock, err := c.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return c.backfillLocked(ctx, id, collection)
}
