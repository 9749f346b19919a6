package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matthewjhunter/coviddash"
)

// newRouter registers the JSON API. p may be nil, in which case POST
// /api/sync runs the sync directly.
func newRouter(engine *coviddash.Engine, p *poller) http.Handler {
	r := mux.NewRouter()
	h := &handlers{engine: engine, poller: p}

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/areas/{code}", h.handleAreaDetail).Methods(http.MethodGet)
	api.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/summaries", h.handleSummaries).Methods(http.MethodGet)
	api.HandleFunc("/lookup/{postcode}", h.handleLookup).Methods(http.MethodGet)
	api.HandleFunc("/saved", h.handleSavedList).Methods(http.MethodGet)
	api.HandleFunc("/saved/{code}", h.handleSave).Methods(http.MethodPut)
	api.HandleFunc("/saved/{code}", h.handleUnsave).Methods(http.MethodDelete)
	api.HandleFunc("/sync", h.handleSync).Methods(http.MethodPost)

	return r
}
