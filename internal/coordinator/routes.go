package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// RegisterRoutes mounts document, search and collection endpoints.
func RegisterRoutes(r chi.Router, c *Coordinator) {
	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", handleList(c))
		r.Post("/", handleAdd(c))
		r.Get("/{id}", handleGet(c))
		r.Patch("/{id}", handleUpdate(c))
		r.Delete("/{id}", handleDelete(c))
		r.Get("/{id}/state", handleState(c))
	})
	r.Post("/api/search", handleSearch(c))
	r.Route("/api/collections", func(r chi.Router) {
		r.Get("/", handleListCollections(c))
		r.Post("/", handleEnsureCollection(c))
		r.Get("/{name}/stats", handleCollectionStats(c))
	})
}

func handleAdd(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
		if err := decodeBody(r, &in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		doc, err := c.AddDocument(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	}
}

func handleGet(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := c.GetDocument(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("collection"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleUpdate(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch Patch
		if err := decodeBody(r, &patch); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		doc, err := c.UpdateDocument(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleDelete(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleState(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := c.State(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("collection"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleList(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := &catalog.Filter{Key: q.Get("key")}

		if v := q.Get("vectorized"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "vectorized must be true or false", http.StatusBadRequest)
				return
			}
			filter.Vectorized = &b
		}
		if filter.Key != "" {
			filter.Value = parseFilterValue(q.Get("value"), q.Get("type"))
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		docs, err := c.ListDocuments(r.Context(), q.Get("collection"), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if docs == nil {
			docs = []*catalog.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// parseFilterValue reads a query-string filter value under an optional
// type hint; without one the value is matched as a string.
func parseFilterValue(value, typ string) any {
	switch typ {
	case "int":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return value
}

func handleSearch(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q Query
		if err := decodeBody(r, &q); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		hits, err := c.QueryBySimilarity(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hits)
	}
}

func handleListCollections(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cols, err := c.ListCollections(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cols)
	}
}

func handleEnsureCollection(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name     string            `json:"name"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if err := c.EnsureCollection(r.Context(), body.Name, body.Metadata); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": body.Name})
	}
}

func handleCollectionStats(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := c.CollectionStats(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// decodeBody keeps JSON numbers as json.Number so integer metadata keeps
// its int tag.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errdefs.HTTPStatus(err), map[string]string{"error": fmt.Sprint(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
