package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
)

// CookieSource supplies session cookies for the download fallback, either as
// a filesystem path or a base64-encoded cookies.txt blob. The blob form is
// materialized to a temp file for the duration of one attempt.
type CookieSource struct {
	Path   string
	Base64 string
}

// Materialize resolves the cookie source to a file path. The returned cleanup
// is never nil. An empty path with a nil error means no cookies are configured.
func (s CookieSource) Materialize() (string, func(), error) {
	noop := func() {}

	if s.Path != "" {
		if _, err := os.Stat(s.Path); err != nil {
			return "", noop, fmt.Errorf("cookies file not accessible: %w", err)
		}
		return s.Path, noop, nil
	}

	if s.Base64 == "" {
		return "", noop, nil
	}

	content, err := base64.StdEncoding.DecodeString(s.Base64)
	if err != nil {
		return "", noop, fmt.Errorf("failed to decode cookies: %w", err)
	}

	f, err := os.CreateTemp("", "yt_cookies_*.txt")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create cookies temp file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", noop, fmt.Errorf("failed to write cookies temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", noop, fmt.Errorf("failed to close cookies temp file: %w", err)
	}

	path := f.Name()
	return path, func() { os.Remove(path) }, nil
}

// YTDLPDownloader implements [DownloadProvider] by shelling out to yt-dlp
// with MP3 extraction enabled.
type YTDLPDownloader struct {
	binary  string
	cookies CookieSource
	workDir string
	logger  *log.Logger
}

// NewYTDLPDownloader creates a downloader. workDir is where per-attempt temp
// directories are created; empty uses the OS temp dir.
func NewYTDLPDownloader(cookies CookieSource, workDir string, logger *log.Logger) *YTDLPDownloader {
	return &YTDLPDownloader{
		binary:  "yt-dlp",
		cookies: cookies,
		workDir: workDir,
		logger:  logger,
	}
}

// SetBinary overrides the yt-dlp binary path. Used by tests.
func (d *YTDLPDownloader) SetBinary(binary string) {
	d.binary = binary
}

// ytdlpInfo is the slice of yt-dlp's --print-json output we consume.
type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Channel   string  `json:"channel"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
}

// Download implements [DownloadProvider]. The downloaded file lives in a
// fresh temp directory owned by the caller.
func (d *YTDLPDownloader) Download(ctx context.Context, videoID string) (string, *models.TrackMetadata, error) {
	dir, err := os.MkdirTemp(d.workDir, "peerless_dl_")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	args := []string{
		"--no-playlist",
		"--no-warnings",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "320K",
		"--print-json",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}

	cookiePath, cleanup, err := d.cookies.Materialize()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("cookies unavailable, downloading without them", "error", err)
		}
	}
	defer cleanup()
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}

	args = append(args, WatchURL(videoID))

	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		// Metadata is best-effort; the file on disk is what matters.
		if d.logger != nil {
			d.logger.Warn("could not parse yt-dlp metadata", "error", err)
		}
	}

	audioPath := filepath.Join(dir, videoID+".mp3")
	if _, err := os.Stat(audioPath); err != nil {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.mp3"))
		if len(matches) == 0 {
			os.RemoveAll(dir)
			return "", nil, fmt.Errorf("yt-dlp produced no mp3 in %s", dir)
		}
		audioPath = matches[0]
	}

	meta := &models.TrackMetadata{
		Title:     info.Title,
		Artist:    info.Uploader,
		Thumbnail: info.Thumbnail,
		Duration:  int(info.Duration),
	}
	if meta.Title == "" {
		meta.Title = "Unknown Title"
	}
	if meta.Artist == "" {
		meta.Artist = info.Channel
	}
	if meta.Artist == "" {
		meta.Artist = "Unknown Artist"
	}
	if meta.Thumbnail == "" {
		meta.Thumbnail = FallbackThumbnail(videoID)
	}

	return audioPath, meta, nil
}
