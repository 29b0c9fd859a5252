package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := setup(t)
	r := chi.NewRouter()
	RegisterRoutes(r, f.coord)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes_DocumentLifecycle(t *testing.T) {
	h, _ := newRouter(t)

	w := do(t, h, http.MethodPost, "/api/documents", map[string]any{
		"id":         "d1",
		"filename":   "hello.txt",
		"collection": "c1",
		"content":    "hello world",
		"metadata":   map[string]any{"public": true, "pages": 3},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/documents/d1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "c1", doc["collection"])

	w = do(t, h, http.MethodGet, "/api/documents/d1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rep StateReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, StateFullySynced, rep.State)

	w = do(t, h, http.MethodPatch, "/api/documents/d1", map[string]any{"metadata": map[string]any{"lang": "en"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/documents?collection=c1&key=public&value=true&type=bool", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Len(t, docs, 1)

	w = do(t, h, http.MethodPost, "/api/search", map[string]any{"collection": "c1", "text": "hello", "top_k": 3})
	require.Equal(t, http.StatusOK, w.Code)
	var hits []Hit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].ID)

	w = do(t, h, http.MethodDelete, "/api/documents/d1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/documents/d1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_NumericMetadataKeepsType(t *testing.T) {
	h, f := newRouter(t)
	ctx := context.Background()

	w := do(t, h, http.MethodPost, "/api/documents", map[string]any{
		"id":         "p1",
		"collection": "c1",
		"content":    "hello",
		"metadata":   map[string]any{"pages": 3, "ratio": 0.5},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	doc, err := f.meta.GetDocument(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Metadata["pages"])
	assert.Equal(t, 0.5, doc.Metadata["ratio"])

	w = do(t, h, http.MethodPatch, "/api/documents/p1", map[string]any{"metadata": map[string]any{"edition": 2}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	doc, err = f.meta.GetDocument(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Metadata["edition"])

	w = do(t, h, http.MethodPost, "/api/search", map[string]any{
		"collection": "c1",
		"text":       "hello",
		"where":      map[string]any{"pages": 3},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hits []Hit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
}

func TestRoutes_Errors(t *testing.T) {
	h, _ := newRouter(t)

	w := do(t, h, http.MethodPost, "/api/search", map[string]any{"collection": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = do(t, h, http.MethodGet, "/api/documents?vectorized=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_Collections(t *testing.T) {
	h, _ := newRouter(t)

	w := do(t, h, http.MethodPost, "/api/collections", map[string]any{"name": "c1", "metadata": map[string]string{"owner": "ops"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cols []CollectionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cols))
	require.Len(t, cols, 1)
	assert.Equal(t, "c1", cols[0].Name)

	w = do(t, h, http.MethodGet, "/api/collections/c1/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFormatHits(t *testing.T) {
	assert.Equal(t, "No results found.", FormatHits(nil))

	out := FormatHits([]Hit{
		{ID: "d1", Collection: "c1", Filename: "a.txt", Score: 0.75, Content: "hello", Metadata: map[string]any{"b": 2, "a": true}},
		{ID: "v1", Collection: "c1", Score: 0.5, Content: "there", Unsynced: true},
	})
	assert.Contains(t, out, "Found 2 result(s)")
	assert.Contains(t, out, "score: 0.7500")
	assert.Contains(t, out, "Metadata: a=true, b=2")
	assert.Contains(t, out, "(not yet in catalog)")
}
