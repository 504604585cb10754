package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/repositories"
	"github.com/peerlessmusic/backend/internal/shared"
)

// FailedTrackHandler serves the durable failure ledger: listing, counting,
// inspecting and resolving entries. The recovery tool is its main consumer.
type FailedTrackHandler struct {
	failed *repositories.FailedTrackRepository
	logger *log.Logger
}

// Routes implements [Handler].
func (h *FailedTrackHandler) Routes() []string {
	return []string{
		"GET /api/failed-tracks",
		"GET /api/failed-tracks/count",
		"GET /api/failed-tracks/{videoID}",
		"POST /api/failed-tracks/{videoID}/resolve",
		"DELETE /api/failed-tracks/{videoID}",
	}
}

// ServeHTTP implements [Handler].
func (h *FailedTrackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/failed-tracks":
		h.handleList(w, r)
	case r.URL.Path == "/api/failed-tracks/count":
		h.handleCount(w, r)
	case strings.HasSuffix(r.URL.Path, "/resolve"):
		h.handleResolve(w, r)
	case r.Method == http.MethodDelete:
		h.handleDelete(w, r)
	default:
		h.handleGet(w, r)
	}
}

func (h *FailedTrackHandler) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	tracks, err := h.failed.List(r.Context(), status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if tracks == nil {
		tracks = []models.FailedTrack{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"failed_tracks": tracks,
		"count":         len(tracks),
	})
}

func (h *FailedTrackHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.failed.CountPending(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"pending": count})
}

func (h *FailedTrackHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	track, err := h.failed.Get(r.Context(), r.PathValue("videoID"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, track)
}

func (h *FailedTrackHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"track_id"`
	}
	// The track ID is optional: an empty body resolves the entry under the
	// originally attempted ID.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeFailure(w, shared.ErrInvalidInput)
		return
	}

	track, err := h.failed.Resolve(r.Context(), r.PathValue("videoID"), req.TrackID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	h.logger.Info("failed track resolved", "video_id", track.VideoID, "track_id", track.TrackID)
	writeJSON(w, http.StatusOK, track)
}

func (h *FailedTrackHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.failed.Delete(r.Context(), r.PathValue("videoID")); err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
