package reconcile

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// RegisterRoutes mounts the reconciliation endpoints.
func RegisterRoutes(r chi.Router, job *Job) {
	r.Route("/api/reconcile", func(r chi.Router) {
		r.Post("/", handleRun(job))
		r.Get("/status", handleStatus(job))
		r.Get("/jobs", handleHistory(job))
		r.Get("/jobs/{id}", handleGetJob(job))
		r.Post("/purge", handlePurge(job))
	})
}

func handleRun(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := job.RunOnce(r.Context(), TriggerManual)
		if err != nil && rep == nil {
			writeJSON(w, errdefs.HTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": rep})
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleStatus(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, job.Status())
	}
}

func handleHistory(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		jobs, err := job.History(r.Context(), limit)
		if err != nil {
			writeJSON(w, errdefs.HTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		if jobs == nil {
			jobs = []JobRecord{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleGetJob(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := job.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, errdefs.HTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handlePurge(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs     []string `json:"ids"`
			Confirm bool     `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if !body.Confirm || len(body.IDs) == 0 {
			http.Error(w, "ids and confirm=true are required", http.StatusBadRequest)
			return
		}
		res, err := job.PurgeOrphans(r.Context(), body.IDs)
		if err != nil {
			writeJSON(w, errdefs.HTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
