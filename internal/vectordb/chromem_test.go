package vectordb

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

// blockingEmbedder ignores its context and sleeps, like a hung model server.
type blockingEmbedder struct {
	delay time.Duration
}

func (b *blockingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	time.Sleep(b.delay)
	return embeddings.NewHashEmbedder(8).Embed(context.Background(), texts)
}
func (b *blockingEmbedder) Dimensions() int { return 8 }
func (b *blockingEmbedder) Name() string    { return "blocking" }

// outageEmbedder fails every call while down is set.
type outageEmbedder struct {
	down atomic.Bool
	dims int
}

func (o *outageEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.down.Load() {
		return nil, errdefs.Unavailable(errors.New("connection refused"))
	}
	return embeddings.NewHashEmbedder(16).Embed(ctx, texts)
}
func (o *outageEmbedder) Dimensions() int { return o.dims }
func (o *outageEmbedder) Name() string    { return "outage" }

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	return NewChromemStore(embeddings.NewHashEmbedder(64), nil)
}

func addRecords(t *testing.T, s Store, collection string, recs ...Record) {
	t.Helper()
	docs := make([]Document, len(recs))
	for i, r := range recs {
		d, err := r.ToDocument(nil)
		if err != nil {
			t.Fatalf("ToDocument(%s): %v", r.ID, err)
		}
		docs[i] = d
	}
	if err := s.AddDocuments(context.Background(), collection, docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
}

func TestChromemStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addRecords(t, s, "c1",
		Record{ID: "d1", Content: "hello world", Metadata: metadata.Map{"lang": "en", "public": true}},
		Record{ID: "d2", Content: "zebra crossing at night", Metadata: metadata.Map{"lang": "it"}},
	)

	results, err := s.QueryByText(ctx, "c1", "hello", 5, nil)
	if err != nil {
		t.Fatalf("QueryByText: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK clamped to 2 results, got %d", len(results))
	}
	if results[0].ID != "d1" {
		t.Errorf("expected d1 first, got %s", results[0].ID)
	}
	if results[0].Score < 0 || results[0].Score > 1 {
		t.Errorf("score out of range: %f", results[0].Score)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not in descending score order: %f < %f", results[0].Score, results[1].Score)
	}
	if results[0].Collection != "c1" {
		t.Errorf("collection = %q, want c1", results[0].Collection)
	}

	md, errs := UserMetadata(results[0].Metadata)
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if md["public"] != true {
		t.Errorf("public = %#v, want bool true", md["public"])
	}
}

func TestChromemStore_QueryWhere(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addRecords(t, s, "c1",
		Record{ID: "a", Content: "hello there", Metadata: metadata.Map{"public": true}},
		Record{ID: "b", Content: "hello again", Metadata: metadata.Map{"public": false}},
	)

	results, err := s.QueryByText(ctx, "c1", "hello", 10, metadata.Map{"public": false})
	if err != nil {
		t.Fatalf("QueryByText: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", results)
	}
}

func TestChromemStore_QueryEmptyAndMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	results, err := s.QueryByText(ctx, "nope", "hello", 5, nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("missing collection: results=%v err=%v", results, err)
	}

	if err := s.EnsureCollection(ctx, "empty", nil); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	results, err = s.QueryByText(ctx, "empty", "hello", 5, nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("empty collection: results=%v err=%v", results, err)
	}

	_, err = s.QueryByText(ctx, "empty", "", 5, nil)
	if !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty text, got %v", err)
	}
}

func TestChromemStore_GetDeleteList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addRecords(t, s, "c1",
		Record{ID: "b", Content: "second doc"},
		Record{ID: "a", Content: "first doc"},
	)

	docs, err := s.GetByIDs(ctx, "c1", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" || docs[0].Content != "first doc" {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	ids, err := s.ListIDs(ctx, "c1")
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListIDs = %v, want [a b]", ids)
	}

	n, err := s.DeleteByIDs(ctx, "c1", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	n, err = s.DeleteByIDs(ctx, "c1", []string{"a"})
	if err != nil || n != 0 {
		t.Errorf("second delete: n=%d err=%v", n, err)
	}
	if n, _ := s.DeleteByIDs(ctx, "ghost", []string{"a"}); n != 0 {
		t.Errorf("delete from missing collection: n=%d", n)
	}

	count, err := s.Count(ctx, "c1")
	if err != nil || count != 1 {
		t.Errorf("Count = %d, %v; want 1", count, err)
	}

	names, err := s.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(names) != 1 || names[0] != "c1" {
		t.Errorf("ListCollections = %v", names)
	}
}

func TestChromemStore_ReAddReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addRecords(t, s, "c1", Record{ID: "a", Content: "old"})
	addRecords(t, s, "c1", Record{ID: "a", Content: "new"})

	docs, err := s.GetByIDs(ctx, "c1", []string{"a"})
	if err != nil || len(docs) != 1 {
		t.Fatalf("GetByIDs: %v %v", docs, err)
	}
	if docs[0].Content != "new" {
		t.Errorf("content = %q, want new", docs[0].Content)
	}
	if n, _ := s.Count(ctx, "c1"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestChromemStore_PrecomputedEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	vecs, err := embeddings.NewHashEmbedder(64).Embed(ctx, []string{"hello world"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	doc, err := Record{ID: "d1", Content: "hello world"}.ToDocument(vecs[0])
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	if err := s.AddDocuments(ctx, "c1", []Document{doc}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	results, err := s.QueryByText(ctx, "c1", "hello world", 1, nil)
	if err != nil || len(results) != 1 {
		t.Fatalf("QueryByText: %v %v", results, err)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical text should score ~1, got %f", results[0].Score)
	}
}

func TestChromemStore_BoundedByContext(t *testing.T) {
	s := NewChromemStore(&blockingEmbedder{delay: 500 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.AddDocuments(ctx, "c1", []Document{{ID: "a", Content: "slow"}})
	if !errors.Is(err, errdefs.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	var se *errdefs.StoreError
	if !errors.As(err, &se) || se.Store != errdefs.StoreVector || se.ID != "a" {
		t.Errorf("expected vector StoreError for id a, got %v", err)
	}
}

func TestChromemStore_PersistentReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")
	emb := embeddings.NewHashEmbedder(32)

	s1, err := NewPersistentChromemStore(dir, emb, nil)
	if err != nil {
		t.Fatalf("NewPersistentChromemStore: %v", err)
	}
	addRecords(t, s1, "c1", Record{ID: "a", Content: "persisted text"})

	s2, err := NewPersistentChromemStore(dir, emb, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	results, err := s2.QueryByText(ctx, "c1", "persisted", 1, nil)
	if err != nil {
		t.Fatalf("QueryByText after reopen: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("unexpected results after reopen: %+v", results)
	}
}

func TestChromemStore_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	emb := embeddings.NewHashEmbedder(32)
	src := NewChromemStore(emb, nil)
	addRecords(t, src, "c1", Record{ID: "a", Content: "one"}, Record{ID: "b", Content: "two"})

	path := filepath.Join(t.TempDir(), "snap", "vectors.gob.gz")
	if err := src.Snapshot(ctx, path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	dst := NewChromemStore(emb, nil)
	if err := dst.Restore(ctx, path); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n, _ := dst.Count(ctx, "c1"); n != 2 {
		t.Errorf("restored count = %d, want 2", n)
	}
	if _, err := dst.QueryByText(ctx, "c1", "one", 1, nil); err != nil {
		t.Errorf("query after restore: %v", err)
	}
}

func TestChromemStore_ListIDsWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	emb := &outageEmbedder{dims: 16}
	s := NewChromemStore(emb, nil)
	addRecords(t, s, "c1",
		Record{ID: "b", Content: "second doc"},
		Record{ID: "a", Content: "first doc"},
	)

	emb.down.Store(true)
	ids, err := s.ListIDs(ctx, "c1")
	if err != nil {
		t.Fatalf("ListIDs with embedder down: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListIDs = %v, want [a b]", ids)
	}

	if _, err := s.QueryByText(ctx, "c1", "first", 1, nil); err == nil {
		t.Error("QueryByText should fail while the embedder is down")
	}
}

func TestChromemStore_ListIDsLearnsDimensions(t *testing.T) {
	ctx := context.Background()
	emb := &outageEmbedder{}
	s := NewChromemStore(emb, nil)

	vec, err := embeddings.NewHashEmbedder(16).Embed(ctx, []string{"precomputed"})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Record{ID: "p", Content: "precomputed"}.ToDocument(vec[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddDocuments(ctx, "c1", []Document{doc}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	emb.down.Store(true)
	ids, err := s.ListIDs(ctx, "c1")
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p" {
		t.Errorf("ListIDs = %v, want [p]", ids)
	}
}
