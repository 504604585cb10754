package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/shared"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func TestFailedTrackRepository(t *testing.T) {
	ctx := context.Background()

	newFailure := func(videoID string) *models.FailedTrack {
		return &models.FailedTrack{
			VideoID:      videoID,
			Title:        "Believer",
			Artist:       "Imagine Dragons",
			Thumbnail:    "https://img.youtube.com/vi/" + videoID + "/maxresdefault.jpg",
			Duration:     204,
			ErrorMessage: "download fallback failed",
		}
	}

	t.Run("upsert and get", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if err := repo.Upsert(ctx, newFailure("dQw4w9WgXcQ")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		track, err := repo.Get(ctx, "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if track.Status != models.StatusPending {
			t.Errorf("expected pending status, got %s", track.Status)
		}
		if track.Title != "Believer" || track.ErrorMessage == "" {
			t.Errorf("unexpected track: %+v", track)
		}
		if track.ResolvedAt != nil {
			t.Error("expected no resolved_at on a fresh failure")
		}
	})

	t.Run("get missing entry", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if _, err := repo.Get(ctx, "missing0000"); !errors.Is(err, shared.ErrFailedTrackMissing) {
			t.Errorf("expected ErrFailedTrackMissing, got %v", err)
		}
	})

	t.Run("re-failing overwrites and resets to pending", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if err := repo.Upsert(ctx, newFailure("dQw4w9WgXcQ")); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.Resolve(ctx, "dQw4w9WgXcQ", "97dbd29519287b8c"); err != nil {
			t.Fatal(err)
		}

		again := newFailure("dQw4w9WgXcQ")
		again.ErrorMessage = "failed a second time"
		if err := repo.Upsert(ctx, again); err != nil {
			t.Fatal(err)
		}

		track, err := repo.Get(ctx, "dQw4w9WgXcQ")
		if err != nil {
			t.Fatal(err)
		}
		if track.Status != models.StatusPending {
			t.Errorf("expected status reset to pending, got %s", track.Status)
		}
		if track.ErrorMessage != "failed a second time" {
			t.Errorf("expected the latest error message, got %q", track.ErrorMessage)
		}
		if track.TrackID != "" || track.ResolvedAt != nil {
			t.Error("expected resolution state to be cleared")
		}
	})

	t.Run("list filters by status newest first", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		for _, id := range []string{"video000001", "video000002", "video000003"} {
			if err := repo.Upsert(ctx, newFailure(id)); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := repo.Resolve(ctx, "video000002", "97dbd29519287b8c"); err != nil {
			t.Fatal(err)
		}

		pending, err := repo.List(ctx, models.StatusPending)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending, got %d", len(pending))
		}
		if pending[0].VideoID != "video000003" {
			t.Errorf("expected newest first, got %s", pending[0].VideoID)
		}

		all, err := repo.List(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 total, got %d", len(all))
		}
	})

	t.Run("resolve stamps track id and resolved_at", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if err := repo.Upsert(ctx, newFailure("dQw4w9WgXcQ")); err != nil {
			t.Fatal(err)
		}

		track, err := repo.Resolve(ctx, "dQw4w9WgXcQ", "97dbd29519287b8c")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if track.Status != models.StatusResolved {
			t.Errorf("expected resolved status, got %s", track.Status)
		}
		if track.TrackID != "97dbd29519287b8c" {
			t.Errorf("expected the track ID to be recorded, got %q", track.TrackID)
		}
		if track.ResolvedAt == nil {
			t.Error("expected resolved_at to be stamped")
		}
	})

	t.Run("resolve without a track id falls back to the attempted one", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		failure := newFailure("dQw4w9WgXcQ")
		failure.TrackID = "97dbd29519287b8c"
		if err := repo.Upsert(ctx, failure); err != nil {
			t.Fatal(err)
		}

		stored, err := repo.Get(ctx, "dQw4w9WgXcQ")
		if err != nil {
			t.Fatal(err)
		}
		if stored.TrackID != "97dbd29519287b8c" {
			t.Fatalf("expected the attempted track ID stored, got %q", stored.TrackID)
		}

		track, err := repo.Resolve(ctx, "dQw4w9WgXcQ", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if track.Status != models.StatusResolved {
			t.Errorf("expected resolved status, got %s", track.Status)
		}
		if track.TrackID != "97dbd29519287b8c" {
			t.Errorf("expected fallback to the attempted track ID, got %q", track.TrackID)
		}
	})

	t.Run("resolve is idempotent and keeps the original track id", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if err := repo.Upsert(ctx, newFailure("dQw4w9WgXcQ")); err != nil {
			t.Fatal(err)
		}
		first, err := repo.Resolve(ctx, "dQw4w9WgXcQ", "97dbd29519287b8c")
		if err != nil {
			t.Fatal(err)
		}

		second, err := repo.Resolve(ctx, "dQw4w9WgXcQ", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.TrackID != "97dbd29519287b8c" {
			t.Errorf("expected the original track ID kept, got %q", second.TrackID)
		}
		if !second.ResolvedAt.Equal(*first.ResolvedAt) {
			t.Error("expected resolved_at to be unchanged on re-resolve")
		}
	})

	t.Run("resolve missing entry", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if _, err := repo.Resolve(ctx, "missing0000", "x"); !errors.Is(err, shared.ErrFailedTrackMissing) {
			t.Errorf("expected ErrFailedTrackMissing, got %v", err)
		}
	})

	t.Run("delete and count", func(t *testing.T) {
		repo := NewFailedTrackRepository(newTestDB(t))

		if err := repo.Upsert(ctx, newFailure("video000001")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Upsert(ctx, newFailure("video000002")); err != nil {
			t.Fatal(err)
		}

		count, err := repo.CountPending(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("expected 2 pending, got %d", count)
		}

		if err := repo.Delete(ctx, "video000001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := repo.Delete(ctx, "video000001"); !errors.Is(err, shared.ErrFailedTrackMissing) {
			t.Errorf("expected ErrFailedTrackMissing on double delete, got %v", err)
		}

		count, err = repo.CountPending(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("expected 1 pending after delete, got %d", count)
		}
	})
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		repo := NewIdentityRepository(newTestDB(t))

		identity := &models.Identity{
			Username:     "MusicLover",
			PasswordHash: "salt:hash",
			DisplayName:  "Music Lover",
		}
		if err := repo.Create(ctx, identity); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if identity.ID == "" {
			t.Fatal("expected a generated ID")
		}
		if identity.Username != "musiclover" {
			t.Errorf("expected the username stored lowercase, got %s", identity.Username)
		}

		byID, err := repo.Get(ctx, identity.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if byID.DisplayName != "Music Lover" {
			t.Errorf("unexpected identity: %+v", byID)
		}

		byName, err := repo.GetByUsername(ctx, "  MUSICLOVER ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if byName.ID != identity.ID {
			t.Error("expected username lookup to be case-insensitive")
		}
	})

	t.Run("duplicate usernames are rejected", func(t *testing.T) {
		repo := NewIdentityRepository(newTestDB(t))

		first := &models.Identity{Username: "taken", PasswordHash: "salt:hash"}
		if err := repo.Create(ctx, first); err != nil {
			t.Fatal(err)
		}

		dup := &models.Identity{Username: "Taken", PasswordHash: "salt:hash"}
		if err := repo.Create(ctx, dup); !errors.Is(err, shared.ErrUsernameTaken) {
			t.Errorf("expected ErrUsernameTaken, got %v", err)
		}
	})

	t.Run("short usernames fail validation", func(t *testing.T) {
		repo := NewIdentityRepository(newTestDB(t))

		if err := repo.Create(ctx, &models.Identity{Username: "ab", PasswordHash: "salt:hash"}); err == nil {
			t.Error("expected a validation error")
		}
	})

	t.Run("missing identity", func(t *testing.T) {
		repo := NewIdentityRepository(newTestDB(t))

		if _, err := repo.Get(ctx, "nope"); !errors.Is(err, shared.ErrIdentityNotFound) {
			t.Errorf("expected ErrIdentityNotFound, got %v", err)
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	ctx := context.Background()

	sampleTrack := func(videoID, title string) models.PlaylistTrack {
		return models.PlaylistTrack{
			VideoID:   videoID,
			Title:     title,
			Artist:    "Imagine Dragons",
			Thumbnail: "https://img.youtube.com/vi/" + videoID + "/maxresdefault.jpg",
			Duration:  204,
		}
	}

	t.Run("create and get", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		playlist := &models.Playlist{Name: "Road Trip", Description: "windows down"}
		if err := repo.Create(ctx, playlist); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if playlist.ID == "" {
			t.Fatal("expected a generated ID")
		}

		got, err := repo.Get(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "Road Trip" || got.UserID != "" {
			t.Errorf("unexpected playlist: %+v", got)
		}
		if len(got.Tracks) != 0 {
			t.Errorf("expected no tracks, got %d", len(got.Tracks))
		}
	})

	t.Run("create without a name fails", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		if err := repo.Create(ctx, &models.Playlist{}); err == nil {
			t.Error("expected a validation error")
		}
	})

	t.Run("tracks keep position order and dedupe by video", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		playlist := &models.Playlist{Name: "Mix"}
		if err := repo.Create(ctx, playlist); err != nil {
			t.Fatal(err)
		}

		if _, err := repo.AddTrack(ctx, playlist.ID, sampleTrack("video000001", "Believer")); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.AddTrack(ctx, playlist.ID, sampleTrack("video000002", "Numb")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.AddTrack(ctx, playlist.ID, sampleTrack("video000001", "Believer"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Tracks) != 2 {
			t.Fatalf("expected duplicate add to be a no-op, got %d tracks", len(got.Tracks))
		}
		if got.Tracks[0].Title != "Believer" || got.Tracks[0].Position != 0 {
			t.Errorf("unexpected first track: %+v", got.Tracks[0])
		}
		if got.Tracks[1].Position != 1 {
			t.Errorf("expected appended position 1, got %d", got.Tracks[1].Position)
		}
		if got.CoverImage == "" {
			t.Error("expected the cover to backfill from the first track")
		}
	})

	t.Run("remove track closes the position gap", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		playlist := &models.Playlist{Name: "Mix"}
		if err := repo.Create(ctx, playlist); err != nil {
			t.Fatal(err)
		}
		for i, id := range []string{"video000001", "video000002", "video000003"} {
			if _, err := repo.AddTrack(ctx, playlist.ID, sampleTrack(id, "Track "+string(rune('A'+i)))); err != nil {
				t.Fatal(err)
			}
		}

		got, err := repo.RemoveTrack(ctx, playlist.ID, "video000002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(got.Tracks))
		}
		if got.Tracks[0].Position != 0 || got.Tracks[1].Position != 1 {
			t.Errorf("expected contiguous positions, got %d and %d", got.Tracks[0].Position, got.Tracks[1].Position)
		}

		if _, err := repo.RemoveTrack(ctx, playlist.ID, "video000002"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		playlist := &models.Playlist{Name: "Old Name"}
		if err := repo.Create(ctx, playlist); err != nil {
			t.Fatal(err)
		}

		updated, err := repo.Update(ctx, playlist.ID, "New Name", "fresh")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Name != "New Name" || updated.Description != "fresh" {
			t.Errorf("unexpected playlist: %+v", updated)
		}

		if err := repo.Delete(ctx, playlist.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.Get(ctx, playlist.ID); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, playlist.ID); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound on double delete, got %v", err)
		}
	})

	t.Run("list for user and hydrate by ids", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewPlaylistRepository(db)

		owned := &models.Playlist{Name: "Owned", UserID: "user0001"}
		anon := &models.Playlist{Name: "Anonymous"}
		if err := repo.Create(ctx, owned); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, anon); err != nil {
			t.Fatal(err)
		}

		forUser, err := repo.ListForUser(ctx, "user0001")
		if err != nil {
			t.Fatal(err)
		}
		if len(forUser) != 1 || forUser[0].Name != "Owned" {
			t.Errorf("unexpected user playlists: %+v", forUser)
		}

		byIDs, err := repo.GetByIDs(ctx, []string{anon.ID, "does-not-exist"})
		if err != nil {
			t.Fatal(err)
		}
		if len(byIDs) != 1 || byIDs[0].Name != "Anonymous" {
			t.Errorf("unexpected hydrated playlists: %+v", byIDs)
		}

		empty, err := repo.GetByIDs(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no playlists for no IDs, got %d", len(empty))
		}
	})

	t.Run("assign claims only anonymous playlists", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		anon := &models.Playlist{Name: "Mine Soon"}
		owned := &models.Playlist{Name: "Already Owned", UserID: "someone-else"}
		if err := repo.Create(ctx, anon); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, owned); err != nil {
			t.Fatal(err)
		}

		claimed, err := repo.AssignToUser(ctx, "user0001", []string{anon.ID, owned.ID, "ghost"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claimed != 1 {
			t.Errorf("expected 1 claimed, got %d", claimed)
		}

		got, err := repo.Get(ctx, anon.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.UserID != "user0001" {
			t.Errorf("expected the anonymous playlist claimed, got owner %q", got.UserID)
		}

		still, err := repo.Get(ctx, owned.ID)
		if err != nil {
			t.Fatal(err)
		}
		if still.UserID != "someone-else" {
			t.Errorf("expected the owned playlist untouched, got owner %q", still.UserID)
		}
	})
}
