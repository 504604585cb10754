package models

import (
	"fmt"
	"time"
)

// SearchResult represents one entry returned by the search provider.
type SearchResult struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"` // Duration in seconds
	URL       string `json:"url"`
}

// TrackMetadata is the context attached to a cached audio asset.
type TrackMetadata struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

// StreamDescriptor is the response to a stream request: either a cache hit
// (Cached true) or a freshly acquired asset.
type StreamDescriptor struct {
	TrackID   string `json:"track_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
	AudioURL  string `json:"audio_url"`
	Cached    bool   `json:"cached"`
}

// LibraryTrack represents a cached asset as listed by the library endpoint.
type LibraryTrack struct {
	TrackID   string `json:"track_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
	AudioURL  string `json:"audio_url"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Failed track status values.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// FailedTrack is a durable record of an acquisition that could not complete
// automatically. video_id is the unique key; re-failing the same video
// overwrites the record and resets it to pending.
type FailedTrack struct {
	ID           int64      `json:"id"`
	VideoID      string     `json:"video_id"`
	Title        string     `json:"video_title"`
	Artist       string     `json:"artist"`
	Thumbnail    string     `json:"thumbnail_url,omitempty"`
	Duration     int        `json:"duration"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Status       string     `json:"status"`
	TrackID      string     `json:"track_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Validate checks failed track invariants before persistence.
func (f *FailedTrack) Validate() error {
	if f.VideoID == "" {
		return fmt.Errorf("failed track requires a video_id")
	}
	if f.Status != StatusPending && f.Status != StatusResolved {
		return fmt.Errorf("invalid failed track status: %s", f.Status)
	}
	return nil
}
