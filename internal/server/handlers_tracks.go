package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/pipeline"
	"github.com/peerlessmusic/backend/internal/services"
	"github.com/peerlessmusic/backend/internal/shared"
)

// TrackHandler serves search, streaming, cache checks and the library listing.
type TrackHandler struct {
	search      services.SearchProvider
	coordinator *pipeline.Coordinator
	store       services.AssetStore
	logger      *log.Logger
}

// Routes implements [Handler].
func (h *TrackHandler) Routes() []string {
	return []string{
		"GET /api/search",
		"GET /api/stream/{ref}",
		"GET /api/check/{ref}",
		"GET /api/library",
	}
}

// ServeHTTP implements [Handler].
func (h *TrackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/search":
		h.handleSearch(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/stream/"):
		h.handleStream(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/check/"):
		h.handleCheck(w, r)
	case r.URL.Path == "/api/library":
		h.handleLibrary(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *TrackHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeFailure(w, fmt.Errorf("%w: q", shared.ErrMissingArgument))
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	results, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("search failed", "query", query, "error", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *TrackHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.PathValue("ref"))
	if ref == "" {
		writeFailure(w, fmt.Errorf("%w: ref", shared.ErrMissingArgument))
		return
	}

	desc, err := h.coordinator.Acquire(r.Context(), ref)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

func (h *TrackHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.PathValue("ref"))
	if ref == "" {
		writeFailure(w, fmt.Errorf("%w: ref", shared.ErrMissingArgument))
		return
	}

	desc, err := h.coordinator.Check(r.Context(), ref)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if desc == nil {
		writeJSON(w, http.StatusOK, map[string]any{"cached": false})
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h *TrackHandler) handleLibrary(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("library listing failed", "error", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": tracks,
		"count":  len(tracks),
	})
}
