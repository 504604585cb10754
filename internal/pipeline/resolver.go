package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/services"
)

const defaultStreamTimeout = 300 * time.Second

// Resolver turns a video ID into a local MP3 file. It tries the direct
// stream first (fast, no full download) and falls back to the download
// provider when the stream is unavailable or the remux fails. Fast-path
// failures are absorbed and logged; only fallback failure is terminal.
type Resolver struct {
	streams       services.StreamProvider
	downloads     services.DownloadProvider
	ffmpegBinary  string
	workDir       string
	streamTimeout time.Duration
	logger        *log.Logger
}

// NewResolver creates a resolver. workDir is where per-run temp directories
// live; empty uses the OS temp dir. streamTimeout caps the fast-path remux;
// <= 0 uses the default of five minutes.
func NewResolver(streams services.StreamProvider, downloads services.DownloadProvider, workDir string, streamTimeout time.Duration, logger *log.Logger) *Resolver {
	if streamTimeout <= 0 {
		streamTimeout = defaultStreamTimeout
	}

	return &Resolver{
		streams:       streams,
		downloads:     downloads,
		ffmpegBinary:  "ffmpeg",
		workDir:       workDir,
		streamTimeout: streamTimeout,
		logger:        logger,
	}
}

// SetFFmpegBinary overrides the ffmpeg binary path. Used by tests.
func (r *Resolver) SetFFmpegBinary(binary string) {
	r.ffmpegBinary = binary
}

// Resolve acquires audio for a video and returns the local file path plus
// track metadata.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (string, *models.TrackMetadata, error) {
	if path, meta := r.tryStream(ctx, videoID); path != "" {
		return path, meta, nil
	}

	if r.logger != nil {
		r.logger.Info("falling back to full download", "video_id", videoID)
	}

	path, meta, err := r.downloads.Download(ctx, videoID)
	if err != nil {
		return "", nil, fmt.Errorf("download fallback failed for %s: %w", videoID, err)
	}

	return path, meta, nil
}

// tryStream attempts the fast path. An empty path means the caller should
// fall back; the reason has already been logged.
func (r *Resolver) tryStream(ctx context.Context, videoID string) (string, *models.TrackMetadata) {
	info, err := r.streams.GetStream(ctx, videoID)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("stream lookup failed", "video_id", videoID, "error", err)
		}
		return "", nil
	}
	if info == nil {
		return "", nil
	}

	dir, err := os.MkdirTemp(r.workDir, "peerless_stream_")
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("could not create stream temp dir", "error", err)
		}
		return "", nil
	}
	outputPath := filepath.Join(dir, videoID+".mp3")

	remuxCtx, cancel := context.WithTimeout(ctx, r.streamTimeout)
	defer cancel()

	args := []string{
		"-i", info.StreamURL,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", "320k",
		"-ar", "48000",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(remuxCtx, r.ffmpegBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if r.logger != nil {
			r.logger.Warn("stream remux failed", "video_id", videoID,
				"error", err, "stderr", lastLine(stderr.String()))
		}
		os.RemoveAll(dir)
		return "", nil
	}

	if stat, err := os.Stat(outputPath); err != nil || stat.Size() == 0 {
		if r.logger != nil {
			r.logger.Warn("stream remux produced no audio", "video_id", videoID)
		}
		os.RemoveAll(dir)
		return "", nil
	}

	meta := &models.TrackMetadata{
		Title:     info.Title,
		Artist:    info.Artist,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
	}

	return outputPath, meta
}
