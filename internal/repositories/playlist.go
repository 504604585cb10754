package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/shared"
)

// PlaylistRepository persists playlists and their track membership. Playlists
// may be anonymous (no user_id) and later claimed by a new identity.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a playlist with a generated ID. An empty userID creates an
// anonymous playlist.
func (r *PlaylistRepository) Create(ctx context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	playlist.ID = shared.GenerateID()
	now := time.Now().UTC()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	query := `
		INSERT INTO playlists (id, user_id, name, description, cover_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		playlist.ID, nullable(playlist.UserID), playlist.Name,
		nullable(playlist.Description), nullable(playlist.CoverImage),
		playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	if playlist.Tracks == nil {
		playlist.Tracks = []models.PlaylistTrack{}
	}

	return nil
}

// Get retrieves a playlist with its tracks in position order.
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.Playlist, error) {
	query := `
		SELECT id, user_id, name, description, cover_image, created_at, updated_at
		FROM playlists
		WHERE id = ?
	`

	playlist, err := scanPlaylist(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return nil, err
	}

	tracks, err := r.tracks(ctx, id)
	if err != nil {
		return nil, err
	}
	playlist.Tracks = tracks

	return playlist, nil
}

// ListForUser returns all playlists owned by a user, newest first, with tracks.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID string) ([]models.Playlist, error) {
	query := `
		SELECT id, user_id, name, description, cover_image, created_at, updated_at
		FROM playlists
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

// GetByIDs returns the subset of the given playlist IDs that exist, with
// tracks. Anonymous clients track their playlist IDs locally and hydrate
// them through this call.
func (r *PlaylistRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Playlist, error) {
	if len(ids) == 0 {
		return []models.Playlist{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT id, user_id, name, description, cover_image, created_at, updated_at
		FROM playlists
		WHERE id IN (%s)
		ORDER BY created_at DESC
	`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.list(ctx, query, args...)
}

// Update modifies a playlist's name and description.
func (r *PlaylistRepository) Update(ctx context.Context, id, name, description string) (*models.Playlist, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: playlist requires a name", shared.ErrInvalidInput)
	}

	query := `
		UPDATE playlists
		SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, name, nullable(description), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	return r.Get(ctx, id)
}

// Delete removes a playlist and, via cascade, its tracks.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	// Cascade is declared in the schema but sqlite only honors it with
	// foreign keys enabled, so clear membership explicitly.
	_, err = r.db.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist tracks: %w", err)
	}

	return nil
}

// AddTrack appends a track to a playlist. Adding a track that is already in
// the playlist is a no-op. The first added track becomes the cover image.
func (r *PlaylistRepository) AddTrack(ctx context.Context, playlistID string, track models.PlaylistTrack) (*models.Playlist, error) {
	if _, err := r.Get(ctx, playlistID); err != nil {
		return nil, err
	}
	if track.VideoID == "" {
		return nil, fmt.Errorf("%w: track requires a video_id", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO playlist_tracks (playlist_id, video_id, title, artist, thumbnail, duration, position)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_tracks WHERE playlist_id = ?))
		ON CONFLICT(playlist_id, video_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		playlistID, track.VideoID, track.Title, track.Artist,
		track.Thumbnail, track.Duration, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to add playlist track: %w", err)
	}

	backfill := `
		UPDATE playlists
		SET cover_image = COALESCE(NULLIF(cover_image, ''), ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, backfill, nullable(track.Thumbnail), playlistID); err != nil {
		return nil, fmt.Errorf("failed to update playlist cover: %w", err)
	}

	return r.Get(ctx, playlistID)
}

// RemoveTrack removes a track and closes the position gap it leaves.
func (r *PlaylistRepository) RemoveTrack(ctx context.Context, playlistID, videoID string) (*models.Playlist, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM playlist_tracks WHERE playlist_id = ? AND video_id = ?", playlistID, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove playlist track: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: track %s not in playlist %s", shared.ErrTrackNotFound, videoID, playlistID)
	}

	resequence := `
		UPDATE playlist_tracks
		SET position = (
			SELECT COUNT(*) FROM playlist_tracks AS other
			WHERE other.playlist_id = playlist_tracks.playlist_id
			AND other.position < playlist_tracks.position
		)
		WHERE playlist_id = ?
	`
	if _, err := r.db.ExecContext(ctx, resequence, playlistID); err != nil {
		return nil, fmt.Errorf("failed to resequence playlist: %w", err)
	}

	return r.Get(ctx, playlistID)
}

// AssignToUser claims anonymous playlists for a user. IDs that do not exist
// or already belong to someone else are skipped. Returns the number claimed.
func (r *PlaylistRepository) AssignToUser(ctx context.Context, userID string, playlistIDs []string) (int, error) {
	if len(playlistIDs) == 0 {
		return 0, nil
	}

	claimed := 0
	for _, id := range playlistIDs {
		result, err := r.db.ExecContext(ctx,
			"UPDATE playlists SET user_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id IS NULL",
			userID, id)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim playlist %s: %w", id, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			claimed++
		}
	}

	return claimed, nil
}

func (r *PlaylistRepository) list(ctx context.Context, query string, args ...any) ([]models.Playlist, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	playlists := []models.Playlist{}
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, *playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range playlists {
		tracks, err := r.tracks(ctx, playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].Tracks = tracks
	}

	return playlists, nil
}

func (r *PlaylistRepository) tracks(ctx context.Context, playlistID string) ([]models.PlaylistTrack, error) {
	query := `
		SELECT video_id, title, artist, thumbnail, duration, position
		FROM playlist_tracks
		WHERE playlist_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.PlaylistTrack{}
	for rows.Next() {
		var track models.PlaylistTrack
		if err := rows.Scan(&track.VideoID, &track.Title, &track.Artist,
			&track.Thumbnail, &track.Duration, &track.Position); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}

func scanPlaylist(row scanner) (*models.Playlist, error) {
	var playlist models.Playlist
	var userID, description, coverImage sql.NullString

	err := row.Scan(&playlist.ID, &userID, &playlist.Name, &description,
		&coverImage, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist.UserID = userID.String
	playlist.Description = description.String
	playlist.CoverImage = coverImage.String

	return &playlist, nil
}
