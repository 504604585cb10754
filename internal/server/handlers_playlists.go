package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/auth"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/repositories"
	"github.com/peerlessmusic/backend/internal/shared"
)

// PlaylistHandler serves playlist CRUD and track membership.
//
// Anonymous playlists work capability-style: knowing the ID grants access,
// and clients keep their IDs locally. Owned playlists additionally require
// the owner's session for mutations.
type PlaylistHandler struct {
	playlists *repositories.PlaylistRepository
	tokens    *auth.TokenIssuer
	logger    *log.Logger
}

// Routes implements [Handler].
func (h *PlaylistHandler) Routes() []string {
	return []string{
		"POST /api/playlists",
		"GET /api/playlists",
		"POST /api/playlists/by-ids",
		"GET /api/playlists/{id}",
		"PUT /api/playlists/{id}",
		"DELETE /api/playlists/{id}",
		"POST /api/playlists/{id}/tracks",
		"DELETE /api/playlists/{id}/tracks/{videoID}",
	}
}

// ServeHTTP implements [Handler].
func (h *PlaylistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/playlists" && r.Method == http.MethodPost:
		h.handleCreate(w, r)
	case r.URL.Path == "/api/playlists" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case r.URL.Path == "/api/playlists/by-ids":
		h.handleByIDs(w, r)
	case strings.HasSuffix(r.URL.Path, "/tracks") && r.Method == http.MethodPost:
		h.handleAddTrack(w, r)
	case r.PathValue("videoID") != "":
		h.handleRemoveTrack(w, r)
	case r.Method == http.MethodGet:
		h.handleGet(w, r)
	case r.Method == http.MethodPut:
		h.handleUpdate(w, r)
	case r.Method == http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.NotFound(w, r)
	}
}

// session returns the verified claims for the request, or nil when the
// request carries no usable session.
func (h *PlaylistHandler) session(r *http.Request) *auth.Claims {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	claims, err := h.tokens.Verify(token)
	if err != nil {
		return nil
	}
	return claims
}

// authorize loads a playlist and checks the caller may mutate it.
func (h *PlaylistHandler) authorize(r *http.Request, id string) (*models.Playlist, error) {
	playlist, err := h.playlists.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}

	if playlist.UserID != "" {
		claims := h.session(r)
		if claims == nil || claims.UserID != playlist.UserID {
			return nil, fmt.Errorf("%w: playlist belongs to another user", shared.ErrNotAuthenticated)
		}
	}

	return playlist, nil
}

type playlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *PlaylistHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	playlist := &models.Playlist{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if claims := h.session(r); claims != nil {
		playlist.UserID = claims.UserID
	}

	if err := playlist.Validate(); err != nil {
		writeFailure(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if err := h.playlists.Create(r.Context(), playlist); err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, playlist)
}

func (h *PlaylistHandler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := h.session(r)
	if claims == nil {
		writeFailure(w, fmt.Errorf("%w: listing requires a session", shared.ErrNotAuthenticated))
		return
	}

	playlists, err := h.playlists.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *PlaylistHandler) handleByIDs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	playlists, err := h.playlists.GetByIDs(r.Context(), req.IDs)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *PlaylistHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	playlist, err := h.playlists.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.authorize(r, id); err != nil {
		writeFailure(w, err)
		return
	}

	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	playlist, err := h.playlists.Update(r.Context(), id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.authorize(r, id); err != nil {
		writeFailure(w, err)
		return
	}

	if err := h.playlists.Delete(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PlaylistHandler) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.authorize(r, id); err != nil {
		writeFailure(w, err)
		return
	}

	var track models.PlaylistTrack
	if err := decodeJSON(r, &track); err != nil {
		writeFailure(w, err)
		return
	}

	playlist, err := h.playlists.AddTrack(r.Context(), id, track)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.authorize(r, id); err != nil {
		writeFailure(w, err)
		return
	}

	playlist, err := h.playlists.RemoveTrack(r.Context(), id, r.PathValue("videoID"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, playlist)
}
