// package pipeline implements track acquisition: resolving audio for a
// request, mastering it, and caching it in the asset store exactly once.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/services"
	"github.com/peerlessmusic/backend/internal/shared"
	"github.com/peerlessmusic/backend/internal/trackid"
)

// ErrBusy reports that another acquisition for the same track is already
// running. Callers should retry shortly; by then the asset is usually cached.
var ErrBusy = fmt.Errorf("track acquisition already in progress")

// Ledger records acquisitions that failed terminally so they can be recovered
// out of band.
type Ledger interface {
	Upsert(ctx context.Context, track *models.FailedTrack) error
}

// AudioResolver turns a video ID into a local audio file plus metadata.
type AudioResolver interface {
	Resolve(ctx context.Context, videoID string) (string, *models.TrackMetadata, error)
}

// AudioMasterer post-processes a local audio file, returning the path to use.
type AudioMasterer interface {
	Master(ctx context.Context, inputPath string) string
}

// ThumbFetcher downloads track art for a video into a directory.
type ThumbFetcher interface {
	Fetch(ctx context.Context, videoID, dir string) (string, error)
}

// Coordinator drives the acquisition state machine: cache check, search,
// single-flight guard, resolve, master, upload. It is safe for concurrent use.
type Coordinator struct {
	search   services.SearchProvider
	resolver AudioResolver
	masterer AudioMasterer
	thumbs   ThumbFetcher
	store    services.AssetStore
	ledger   Ledger
	inflight *InFlight
	workDir  string
	logger   *log.Logger
}

// NewCoordinator wires the pipeline together. ledger may be nil, in which
// case terminal failures are only logged.
func NewCoordinator(
	search services.SearchProvider,
	resolver AudioResolver,
	masterer AudioMasterer,
	thumbs ThumbFetcher,
	store services.AssetStore,
	ledger Ledger,
	workDir string,
	logger *log.Logger,
) *Coordinator {
	return &Coordinator{
		search:   search,
		resolver: resolver,
		masterer: masterer,
		thumbs:   thumbs,
		store:    store,
		ledger:   ledger,
		inflight: NewInFlight(),
		workDir:  workDir,
		logger:   logger,
	}
}

// Check reports whether a track is already cached, without acquiring it.
// ref may be a track ID or a free-text query; queries are resolved through
// search first, exactly like Acquire, but nothing is downloaded.
func (c *Coordinator) Check(ctx context.Context, ref string) (*models.StreamDescriptor, error) {
	if trackid.IsID(ref) {
		return c.cached(ctx, ref)
	}

	_, result, err := c.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	return c.cached(ctx, trackid.Derive(result.Title, result.Artist))
}

// Acquire returns a stream descriptor for ref, acquiring and caching the
// audio when it is not cached yet. ref may be a track ID, a video URL/ID, or
// a free-text search query.
//
// Returns [ErrBusy] when another acquisition for the same track is running.
func (c *Coordinator) Acquire(ctx context.Context, ref string) (*models.StreamDescriptor, error) {
	if trackid.IsID(ref) {
		desc, err := c.cached(ctx, ref)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			return desc, nil
		}
		// A bare track ID carries no video reference to acquire from.
		return nil, fmt.Errorf("%w: track %s is not cached", shared.ErrTrackNotFound, ref)
	}

	videoID, result, err := c.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	return c.AcquireVideo(ctx, videoID, result.Title, result.Artist, result.Duration)
}

// AcquireVideo acquires a specific video under the track ID derived from
// (title, artist). The recovery tool uses this entry point directly with
// corrected metadata.
func (c *Coordinator) AcquireVideo(ctx context.Context, videoID, title, artist string, duration int) (*models.StreamDescriptor, error) {
	id := trackid.Derive(title, artist)

	// Second cache check: a different query wording can map to the same
	// (title, artist) pair and the asset may have landed since.
	if desc, err := c.cached(ctx, id); err != nil {
		return nil, err
	} else if desc != nil {
		return desc, nil
	}

	if !c.inflight.TryAcquire(id) {
		return nil, fmt.Errorf("%w: track %s", ErrBusy, id)
	}
	defer c.inflight.Release(id)

	desc, err := c.run(ctx, id, videoID, title, artist, duration)
	if err != nil {
		c.recordFailure(ctx, videoID, title, artist, duration, err)
		return nil, err
	}

	return desc, nil
}

// lookup resolves a query or video URL to a concrete search result.
func (c *Coordinator) lookup(ctx context.Context, ref string) (string, *models.SearchResult, error) {
	results, err := c.search.Search(ctx, ref, 1)
	if err != nil {
		return "", nil, fmt.Errorf("search failed for %q: %w", ref, err)
	}
	if len(results) == 0 {
		return "", nil, fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, ref)
	}

	result := results[0]
	return trackid.ExtractVideoID(result.VideoID), &result, nil
}

// cached returns a descriptor when the audio asset exists, nil otherwise.
func (c *Coordinator) cached(ctx context.Context, id string) (*models.StreamDescriptor, error) {
	meta, err := c.store.Exists(ctx, id, services.KindAudio)
	if err != nil {
		return nil, fmt.Errorf("cache check failed for %s: %w", id, err)
	}
	if meta == nil {
		return nil, nil
	}

	desc := &models.StreamDescriptor{
		TrackID:  id,
		Title:    meta.Context["title"],
		Artist:   meta.Context["artist"],
		Duration: meta.Duration,
		AudioURL: meta.URL,
		Cached:   true,
	}

	if thumb, err := c.store.Exists(ctx, id, services.KindImage); err == nil && thumb != nil {
		desc.Thumbnail = thumb.URL
	}

	return desc, nil
}

// run executes one guarded acquisition. The caller holds the in-flight slot.
func (c *Coordinator) run(ctx context.Context, id, videoID, title, artist string, duration int) (*models.StreamDescriptor, error) {
	audioPath, meta, err := c.resolver.Resolve(ctx, videoID)
	if err != nil {
		return nil, err
	}
	defer CleanupTemp(audioPath)

	masteredPath := c.masterer.Master(ctx, audioPath)
	if masteredPath != audioPath {
		defer CleanupTemp(masteredPath)
	}

	if meta.Duration > 0 {
		duration = meta.Duration
	}

	trackContext := map[string]string{
		"title":    title,
		"artist":   artist,
		"duration": strconv.Itoa(duration),
		"video_id": videoID,
	}

	result, err := c.store.Upload(ctx, masteredPath, id, services.KindAudio, trackContext)
	if err != nil {
		return nil, fmt.Errorf("audio upload failed for %s: %w", id, err)
	}

	desc := &models.StreamDescriptor{
		TrackID:  id,
		Title:    title,
		Artist:   artist,
		Duration: duration,
		AudioURL: result.URL,
	}

	// Thumbnail failure never rolls back a cached audio asset.
	desc.Thumbnail = c.uploadThumbnail(ctx, id, videoID, trackContext)
	if desc.Thumbnail == "" {
		desc.Thumbnail = meta.Thumbnail
	}
	if desc.Thumbnail == "" {
		desc.Thumbnail = services.FallbackThumbnail(videoID)
	}

	if c.logger != nil {
		c.logger.Info("track cached", "track_id", id, "video_id", videoID, "title", title, "artist", artist)
	}

	return desc, nil
}

func (c *Coordinator) uploadThumbnail(ctx context.Context, id, videoID string, trackContext map[string]string) string {
	if c.thumbs == nil {
		return ""
	}

	dir := filepath.Join(c.workDir, "thumbs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}

	path, err := c.thumbs.Fetch(ctx, videoID, dir)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("thumbnail fetch failed", "video_id", videoID, "error", err)
		}
		return ""
	}
	defer os.Remove(path)

	result, err := c.store.Upload(ctx, path, id, services.KindImage, trackContext)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("thumbnail upload failed", "track_id", id, "error", err)
		}
		return ""
	}

	return result.URL
}

func (c *Coordinator) recordFailure(ctx context.Context, videoID, title, artist string, duration int, cause error) {
	if c.logger != nil {
		c.logger.Error("track acquisition failed", "video_id", videoID, "title", title, "error", cause)
	}
	if c.ledger == nil {
		return
	}

	// The attempted track ID is stored so a later resolve without corrected
	// metadata can fall back to it.
	failed := &models.FailedTrack{
		VideoID:      videoID,
		Title:        title,
		Artist:       artist,
		Thumbnail:    services.FallbackThumbnail(videoID),
		Duration:     duration,
		ErrorMessage: cause.Error(),
		Status:       models.StatusPending,
		TrackID:      trackid.Derive(title, artist),
	}

	if err := c.ledger.Upsert(ctx, failed); err != nil && c.logger != nil {
		c.logger.Error("could not record failed track", "video_id", videoID, "error", err)
	}
}
