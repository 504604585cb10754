package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/shared"
)

// FailedTrackRepository persists the durable failure ledger. The video ID is
// the unique key: re-failing a video overwrites its entry and resets it to
// pending, so the ledger always reflects the latest failure.
type FailedTrackRepository struct {
	db *sql.DB
}

// NewFailedTrackRepository creates a new FailedTrackRepository with the given database connection
func NewFailedTrackRepository(db *sql.DB) *FailedTrackRepository {
	return &FailedTrackRepository{db: db}
}

// Upsert records a failed acquisition, overwriting any previous entry for the
// same video and resetting its status to pending. The track ID the attempt
// would have cached under is kept so Resolve can fall back to it.
func (r *FailedTrackRepository) Upsert(ctx context.Context, track *models.FailedTrack) error {
	if track.Status == "" {
		track.Status = models.StatusPending
	}
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO failed_tracks (video_id, title, artist, thumbnail, duration, error_message, status, track_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			thumbnail = excluded.thumbnail,
			duration = excluded.duration,
			error_message = excluded.error_message,
			status = 'pending',
			track_id = excluded.track_id,
			resolved_at = NULL,
			created_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		track.VideoID, track.Title, track.Artist, track.Thumbnail,
		track.Duration, track.ErrorMessage, models.StatusPending, nullable(track.TrackID))
	if err != nil {
		return fmt.Errorf("failed to upsert failed track: %w", err)
	}

	return nil
}

// Get retrieves a ledger entry by video ID.
func (r *FailedTrackRepository) Get(ctx context.Context, videoID string) (*models.FailedTrack, error) {
	query := `
		SELECT id, video_id, title, artist, thumbnail, duration, error_message, status, track_id, created_at, resolved_at
		FROM failed_tracks
		WHERE video_id = ?
	`

	track, err := scanFailedTrack(r.db.QueryRowContext(ctx, query, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrFailedTrackMissing, videoID)
	}
	return track, err
}

// List returns ledger entries newest first, optionally filtered by status.
func (r *FailedTrackRepository) List(ctx context.Context, status string) ([]models.FailedTrack, error) {
	query := `
		SELECT id, video_id, title, artist, thumbnail, duration, error_message, status, track_id, created_at, resolved_at
		FROM failed_tracks
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.FailedTrack
	for rows.Next() {
		track, err := scanFailedTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}

	return tracks, rows.Err()
}

// Resolve marks an entry recovered, stamping resolved_at and recording the
// track ID the audio ended up cached under. Resolving an already resolved
// entry is idempotent; the original track ID is kept when none is supplied.
func (r *FailedTrackRepository) Resolve(ctx context.Context, videoID, trackID string) (*models.FailedTrack, error) {
	query := `
		UPDATE failed_tracks
		SET status = 'resolved',
			track_id = COALESCE(NULLIF(?, ''), track_id),
			resolved_at = COALESCE(resolved_at, CURRENT_TIMESTAMP)
		WHERE video_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, trackID, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve failed track: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrFailedTrackMissing, videoID)
	}

	return r.Get(ctx, videoID)
}

// Delete removes a ledger entry entirely.
func (r *FailedTrackRepository) Delete(ctx context.Context, videoID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM failed_tracks WHERE video_id = ?", videoID)
	if err != nil {
		return fmt.Errorf("failed to delete failed track: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrFailedTrackMissing, videoID)
	}

	return nil
}

// CountPending returns the number of entries still awaiting recovery.
func (r *FailedTrackRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM failed_tracks WHERE status = 'pending'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tracks: %w", err)
	}
	return count, nil
}

func scanFailedTrack(row scanner) (*models.FailedTrack, error) {
	var track models.FailedTrack
	var thumbnail, errorMessage, trackID sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&track.ID, &track.VideoID, &track.Title, &track.Artist,
		&thumbnail, &track.Duration, &errorMessage, &track.Status, &trackID,
		&track.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan failed track: %w", err)
	}

	track.Thumbnail = thumbnail.String
	track.ErrorMessage = errorMessage.String
	track.TrackID = trackID.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		track.ResolvedAt = &t
	}

	return &track, nil
}
