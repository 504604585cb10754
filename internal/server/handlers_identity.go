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

// IdentityHandler serves account creation, login, logout and session lookup.
// Accounts are optional; creating one claims the anonymous playlists the
// client accumulated before signing up.
type IdentityHandler struct {
	identities *repositories.IdentityRepository
	playlists  *repositories.PlaylistRepository
	tokens     *auth.TokenIssuer
	cookies    CookiePolicy
	logger     *log.Logger
}

// Routes implements [Handler].
func (h *IdentityHandler) Routes() []string {
	return []string{
		"POST /api/identity",
		"POST /api/identity/login",
		"POST /api/identity/logout",
		"GET /api/identity/me",
	}
}

// ServeHTTP implements [Handler].
func (h *IdentityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/identity":
		h.handleCreate(w, r)
	case "/api/identity/login":
		h.handleLogin(w, r)
	case "/api/identity/logout":
		h.handleLogout(w, r)
	case "/api/identity/me":
		h.handleMe(w, r)
	default:
		http.NotFound(w, r)
	}
}

type identityRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	DisplayName string   `json:"display_name"`
	PlaylistIDs []string `json:"playlist_ids"`
}

type sessionResponse struct {
	User             *models.Identity `json:"user"`
	Token            string           `json:"token"`
	PlaylistsClaimed int              `json:"playlists_claimed"`
}

func (h *IdentityHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Password == "" {
		writeFailure(w, fmt.Errorf("%w: password is required", shared.ErrInvalidInput))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeFailure(w, err)
		return
	}

	identity := &models.Identity{
		Username:     req.Username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
	}
	if err := identity.Validate(); err != nil {
		writeFailure(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if err := h.identities.Create(r.Context(), identity); err != nil {
		writeFailure(w, err)
		return
	}

	claimed, err := h.playlists.AssignToUser(r.Context(), identity.ID, req.PlaylistIDs)
	if err != nil {
		h.logger.Warn("could not claim playlists", "user_id", identity.ID, "error", err)
	}

	h.respondWithSession(w, identity, claimed)
}

func (h *IdentityHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	identity, err := h.identities.GetByUsername(r.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(req.Password, identity.PasswordHash) {
		// One answer for bad username and bad password.
		writeFailure(w, fmt.Errorf("%w: invalid credentials", shared.ErrAuthFailed))
		return
	}

	claimed, err := h.playlists.AssignToUser(r.Context(), identity.ID, req.PlaylistIDs)
	if err != nil {
		h.logger.Warn("could not claim playlists", "user_id", identity.ID, "error", err)
	}

	h.respondWithSession(w, identity, claimed)
}

func (h *IdentityHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *IdentityHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeFailure(w, fmt.Errorf("%w: no session", shared.ErrNotAuthenticated))
		return
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		writeFailure(w, err)
		return
	}

	identity, err := h.identities.Get(r.Context(), claims.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": identity})
}

func (h *IdentityHandler) respondWithSession(w http.ResponseWriter, identity *models.Identity, claimed int) {
	token, err := h.tokens.Create(identity.ID, identity.Username)
	if err != nil {
		writeFailure(w, err)
		return
	}

	h.cookies.Set(w, token, h.tokens.TTL())
	writeJSON(w, http.StatusOK, sessionResponse{
		User:             identity,
		Token:            token,
		PlaylistsClaimed: claimed,
	})
}
