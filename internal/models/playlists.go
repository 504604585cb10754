package models

import (
	"fmt"
	"time"
)

// PlaylistTrack is a track reference stored inside a playlist. The video_id
// may be either an external video ID or a track_id for library tracks.
type PlaylistTrack struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
	Position  int    `json:"position"`
}

// Playlist represents a user or anonymous playlist. UserID is empty for
// anonymous playlists claimed later via identity creation.
type Playlist struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CoverImage  string          `json:"cover_image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Tracks      []PlaylistTrack `json:"tracks"`
}

// Validate checks playlist invariants before persistence.
func (p *Playlist) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("playlist requires a name")
	}
	return nil
}

// Identity is an optional username/password account owning playlists.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks identity invariants before persistence.
func (i *Identity) Validate() error {
	if len(i.Username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if i.PasswordHash == "" {
		return fmt.Errorf("identity requires a password hash")
	}
	return nil
}
