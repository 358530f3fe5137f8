package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tensorjobs/internal/ledger"
)

// ListJobs returns the newest ledger entries. ?limit= is clamped to the
// ledger's bounds.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, r, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	entries, err := a.Jobs.List(r.Context(), limit)
	if err != nil {
		a.error(w, r, http.StatusInternalServerError, "list jobs failed", err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"jobs":  entries,
		"count": len(entries),
		"limit": ledger.ClampLimit(limit),
	})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := a.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "job not found", nil)
			return
		}
		a.error(w, r, http.StatusInternalServerError, "get job failed", err)
		return
	}
	a.json(w, http.StatusOK, entry)
}
