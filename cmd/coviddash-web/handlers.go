package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/matthewjhunter/coviddash"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/matthewjhunter/coviddash/internal/summary"
	"github.com/sirupsen/logrus"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *coviddash.Engine
	poller *poller
}

type errorBody struct {
	Error string `json:"error"`
}

type healthBody struct {
	Status     string                `json:"status"`
	LastSync   *coviddash.SyncResult `json:"last_sync,omitempty"`
	LastSyncAt *time.Time            `json:"last_sync_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("coviddash-web: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeEngineError maps engine sentinels to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coviddash.ErrUnknownArea), errors.Is(err, coviddash.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coviddash.ErrNoData):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logrus.WithError(err).Error("coviddash-web: request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok"}
	if h.poller != nil {
		last, at := h.poller.lastResult()
		if last != nil {
			body.LastSync = last
			body.LastSyncAt = &at
			body.Status = string(last.Status)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) handleAreaDetail(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	areaType := r.URL.Query().Get("type")
	if areaType != "" {
		if _, err := storage.ParseAreaType(areaType); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	detail, err := h.engine.AreaDetail(r.Context(), code, areaType)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	areas, err := h.engine.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (h *handlers) handleSummaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortBy := q.Get("sort")
	if sortBy != "" {
		if _, err := summary.ParseSortOption(sortBy); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	summaries, err := h.engine.AreaSummaries(r.Context(), sortBy, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handlers) handleLookup(w http.ResponseWriter, r *http.Request) {
	l, err := h.engine.LookupPostcode(r.Context(), mux.Vars(r)["postcode"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *handlers) handleSavedList(w http.ResponseWriter, r *http.Request) {
	areas, err := h.engine.SavedAreas(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (h *handlers) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SaveArea(r.Context(), mux.Vars(r)["code"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleUnsave(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.UnsaveArea(r.Context(), mux.Vars(r)["code"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs a sync now. A fatal result is still returned as JSON,
// with 503, so the client sees which categories failed.
func (h *handlers) handleSync(w http.ResponseWriter, r *http.Request) {
	var (
		result *coviddash.SyncResult
		err    error
	)
	if h.poller != nil {
		result, err = h.poller.poll(r.Context())
	} else {
		result, err = h.engine.Sync(r.Context())
	}
	switch {
	case result != nil && result.Status == coviddash.StatusFatal:
		writeJSON(w, http.StatusServiceUnavailable, result)
	case err != nil:
		writeEngineError(w, err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
