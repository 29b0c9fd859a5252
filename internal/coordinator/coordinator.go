// Package coordinator routes every document mutation to the catalog and the
// vector store. The catalog write always precedes the vector write; reads
// fall back to the vector store and backfill the catalog.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/keylock"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/vectordb"
)

// Options tunes timeouts and retries. Zero timeouts disable the bound.
type Options struct {
	DefaultCollection string
	MetadataTimeout   time.Duration
	VectorTimeout     time.Duration
	EmbedTimeout      time.Duration
	// RetryAttempts is how many times a transient failure is retried.
	RetryAttempts int
	RetryBackoff  time.Duration
	Logger        *slog.Logger
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultCollection: "default",
		MetadataTimeout:   5 * time.Second,
		VectorTimeout:     10 * time.Second,
		EmbedTimeout:      30 * time.Second,
		RetryAttempts:     2,
		RetryBackoff:      200 * time.Millisecond,
	}
}

// Coordinator owns the consistency rules between the two stores.
type Coordinator struct {
	meta     MetadataStore
	vec      vectordb.Store
	embedder embeddings.Embedder
	locks    *keylock.Map
	opts     Options
	logger   *slog.Logger
}

// New creates a Coordinator over the given stores.
func New(meta MetadataStore, vec vectordb.Store, embedder embeddings.Embedder, opts Options) *Coordinator {
	return &Coordinator{
		meta:     meta,
		vec:      vec,
		embedder: embedder,
		locks:    keylock.New(),
		opts:     opts,
		logger:   logging.OrDiscard(opts.Logger).With("component", "coordinator"),
	}
}

// Metadata returns the catalog the coordinator writes to.
func (c *Coordinator) Metadata() MetadataStore { return c.meta }

// Vector returns the vector store the coordinator writes to.
func (c *Coordinator) Vector() vectordb.Store { return c.vec }

// DefaultCollection returns the collection used when none is given.
func (c *Coordinator) DefaultCollection() string { return c.opts.DefaultCollection }

// lock serializes all mutations of one document id.
func (c *Coordinator) lock(ctx context.Context, id string) (func(), error) {
	unlock, err := c.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("waiting for document %s: %w", id, err)
	}
	return unlock, nil
}

// retry runs fn with a per-attempt timeout and retries transient failures
// with exponential backoff.
func (c *Coordinator) retry(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	backoff := c.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		opCtx, cancel := withTimeout(ctx, timeout)
		err := fn(opCtx)
		cancel()

		if err == nil || !errdefs.IsTransient(err) || attempt >= c.opts.RetryAttempts || ctx.Err() != nil {
			return err
		}
		c.logger.Debug("retrying transient store failure", "attempt", attempt+1, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
}

func (c *Coordinator) getMeta(ctx context.Context, id string) (*catalog.Document, error) {
	var doc *catalog.Document
	err := c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		var err error
		doc, err = c.meta.GetDocument(ctx, id)
		return err
	})
	return doc, err
}

func (c *Coordinator) saveMeta(ctx context.Context, doc *catalog.Document) error {
	return c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		return c.meta.SaveDocument(ctx, doc)
	})
}

func (c *Coordinator) setVectorized(ctx context.Context, id string, v bool) error {
	return c.retry(ctx, c.opts.MetadataTimeout, func(ctx context.Context) error {
		return c.meta.SetVectorized(ctx, id, v)
	})
}

// embed vectorizes the document content. Each attempt is bounded by the
// embedding timeout; transient failures are retried.
func (c *Coordinator) embed(ctx context.Context, doc *catalog.Document) ([]float32, error) {
	var emb []float32
	err := c.retry(ctx, c.opts.EmbedTimeout, func(opCtx context.Context) error {
		v, err := c.embedOnce(opCtx, doc.Content)
		emb = v
		return err
	})
	if err != nil {
		return nil, errdefs.Wrap(errdefs.StoreEmbedder, "embed", doc.Collection, doc.ID, fmt.Errorf("%w: %w", errdefs.ErrEmbedding, err))
	}
	return emb, nil
}

// embedOnce returns when ctx ends even if the embedder ignores it.
func (c *Coordinator) embedOnce(ctx context.Context, text string) ([]float32, error) {
	type result struct {
		vecs [][]float32
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		vecs, err := c.embedder.Embed(ctx, []string{text})
		ch <- result{vecs, err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err != nil:
			return nil, r.err
		case len(r.vecs) == 0 || len(r.vecs[0]) == 0:
			return nil, errors.New("embedder returned no vector")
		}
		return r.vecs[0], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// vectorize embeds doc, writes it to the vector store and marks it
// vectorized. Callers hold the id lock and have already saved doc.
func (c *Coordinator) vectorize(ctx context.Context, doc *catalog.Document) error {
	emb, err := c.embed(ctx, doc)
	if err != nil {
		return err
	}

	vdoc, err := toRecord(doc).ToDocument(emb)
	if err != nil {
		return err
	}
	err = c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
		if err := c.vec.EnsureCollection(ctx, doc.Collection, nil); err != nil {
			return err
		}
		return c.vec.AddDocuments(ctx, doc.Collection, []vectordb.Document{vdoc})
	})
	if err != nil {
		return err
	}

	if err := c.setVectorized(ctx, doc.ID, true); err != nil {
		return err
	}
	doc.Vectorized = true
	return nil
}

// deleteVectors removes id from the given vector collections, or from all
// of them when none are given, and returns how many records existed.
func (c *Coordinator) deleteVectors(ctx context.Context, id string, collections ...string) (int, error) {
	if len(collections) == 0 {
		var err error
		collections, err = c.vectorCollections(ctx)
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, col := range collections {
		var n int
		err := c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
			var err error
			n, err = c.vec.DeleteByIDs(ctx, col, []string{id})
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Coordinator) vectorCollections(ctx context.Context) ([]string, error) {
	var cols []string
	err := c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
		var err error
		cols, err = c.vec.ListCollections(ctx)
		return err
	})
	return cols, err
}

// findVector looks id up in collection, or in every vector collection when
// collection is empty. A nil document means the id is not stored. An id
// held by more than one collection is an integrity violation.
func (c *Coordinator) findVector(ctx context.Context, id, collection string) (*vectordb.Document, string, error) {
	collections := []string{collection}
	if collection == "" {
		var err error
		collections, err = c.vectorCollections(ctx)
		if err != nil {
			return nil, "", err
		}
	}

	var (
		found   *vectordb.Document
		foundIn []string
	)
	for _, col := range collections {
		var docs []vectordb.Document
		err := c.retry(ctx, c.opts.VectorTimeout, func(ctx context.Context) error {
			var err error
			docs, err = c.vec.GetByIDs(ctx, col, []string{id})
			return err
		})
		if err != nil {
			return nil, "", err
		}
		if len(docs) > 0 {
			if found == nil {
				found = &docs[0]
			}
			foundIn = append(foundIn, col)
		}
	}
	if len(foundIn) > 1 {
		return nil, "", errdefs.Wrap(errdefs.StoreVector, "get", "", id,
			fmt.Errorf("%w: id stored in collections %s", errdefs.ErrIntegrityViolation, strings.Join(foundIn, ", ")))
	}
	if found == nil {
		return nil, "", nil
	}
	return found, foundIn[0], nil
}

func toRecord(doc *catalog.Document) vectordb.Record {
	return vectordb.Record{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Content:     doc.Content,
		SourcePath:  doc.SourcePath,
		ContentHash: doc.ContentHash,
		Metadata:    doc.Metadata,
		CreatedAt:   doc.CreatedAt,
		LastUpdated: doc.LastUpdated,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", errdefs.ErrDocumentNotFound, id)
}
