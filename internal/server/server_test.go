package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/db"
	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/reconcile"
	"github.com/ziadkadry99/docindex/internal/vectordb"
)

// downVectors is a vector store that cannot be reached.
type downVectors struct {
	vectordb.Store
}

func (downVectors) ListCollections(context.Context) ([]string, error) {
	return nil, errdefs.ErrStoreUnavailable
}

type downCatalog struct{}

func (downCatalog) Check(context.Context) error { return errors.New("database is closed") }

func newTestServer(t *testing.T, cfg Config, vec vectordb.Store, check Checker) *Server {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	embedder := embeddings.NewHashEmbedder(32)
	meta := catalog.NewStore(database, nil)
	if vec == nil {
		vec = vectordb.NewChromemStore(embedder, nil)
	}
	if check == nil {
		check = meta
	}
	coord := coordinator.New(meta, vec, embedder, coordinator.DefaultOptions())
	job := reconcile.NewJob(coord, meta, nil, reconcile.NewStore(database), reconcile.Options{})
	return New(cfg, coord, job, check, nil)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		vec      vectordb.Store
		check    Checker
		wantCode int
		wantDown string
	}{
		{"both stores up", nil, nil, http.StatusOK, ""},
		{"vector store down", downVectors{}, nil, http.StatusServiceUnavailable, "vector"},
		{"catalog down", nil, downCatalog{}, http.StatusServiceUnavailable, "metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{}, tt.vec, tt.check)

			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tt.wantDown == "" {
				if body.Status != "ready" {
					t.Errorf("expected ready, got %q", body.Status)
				}
				return
			}
			if body.Checks[tt.wantDown] == "ok" {
				t.Errorf("expected %s check to fail, got %v", tt.wantDown, body.Checks)
			}
		})
	}
}

func TestRoutesMounted(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, nil)

	for _, path := range []string{"/api/documents", "/api/collections", "/api/reconcile/status"} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"id":"a","collection":"c","content":"hello"}`)
	srv.Router().ServeHTTP(w, httptest.NewRequest("POST", "/api/documents", body))
	if w.Code != http.StatusCreated {
		t.Errorf("POST /api/documents: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, Config{AllowAll: true}, nil, nil)

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := newTestServer(t, Config{}, nil, nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown before Start: %v", err)
	}
	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start after Shutdown: got %v, want ErrServerClosed", err)
	}
}
