// package services defines interfaces for the external collaborators of the
// acquisition pipeline
//
// YouTube (InnerTube search + streams, yt-dlp downloads), S3 asset storage,
// and the backend failed-tracks API consumed by the recovery tool.
package services

import (
	"context"

	"github.com/peerlessmusic/backend/internal/models"
)

// SearchProvider searches the video platform for candidate tracks.
type SearchProvider interface {
	// Search returns up to limit results ordered by provider relevance.
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// StreamInfo describes a direct audio stream variant for a video.
type StreamInfo struct {
	StreamURL string
	Title     string
	Artist    string
	Thumbnail string
	Duration  int
	MimeType  string
}

// StreamProvider resolves a video ID to a direct audio stream.
type StreamProvider interface {
	// GetStream returns the best available audio stream for the video, or
	// (nil, nil) when the video is not playable or exposes no usable audio
	// variant. Errors indicate transport failures; callers treat both the
	// same way and fall back to a full download.
	GetStream(ctx context.Context, videoID string) (*StreamInfo, error)
}

// DownloadProvider downloads a video's audio to a local file. This is the
// guaranteed path: it must return an error on total failure rather than a
// partial result.
type DownloadProvider interface {
	// Download returns the path of a local MP3 file plus track metadata.
	Download(ctx context.Context, videoID string) (string, *models.TrackMetadata, error)
}

// AssetKind distinguishes the two blob types stored per track.
type AssetKind string

const (
	KindAudio AssetKind = "audio"
	KindImage AssetKind = "image"
)

// AssetMetadata describes an existing stored asset.
type AssetMetadata struct {
	URL      string
	Duration int
	Context  map[string]string // title/artist context attached at upload time
}

// UploadResult describes a completed upload.
type UploadResult struct {
	URL      string
	Duration int
}

// AssetStore is a key-addressable blob store for cached audio and thumbnails.
// Uploads overwrite by key, which makes re-acquisition idempotent.
type AssetStore interface {
	// Exists returns metadata for the stored asset, or nil when absent.
	Exists(ctx context.Context, trackID string, kind AssetKind) (*AssetMetadata, error)

	// Upload stores a local file under the track ID with attached context.
	Upload(ctx context.Context, localPath, trackID string, kind AssetKind, context map[string]string) (*UploadResult, error)

	// Delete removes a stored asset. Returns false when nothing was stored.
	Delete(ctx context.Context, trackID string, kind AssetKind) (bool, error)

	// List returns all cached audio assets, newest first.
	List(ctx context.Context) ([]models.LibraryTrack, error)
}
