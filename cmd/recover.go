package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/pipeline"
	"github.com/peerlessmusic/backend/internal/services"
	"github.com/peerlessmusic/backend/internal/shared"
	"github.com/peerlessmusic/backend/internal/trackid"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Batch recovery paces acquisitions to stay under provider rate limits.
const batchPace = rate.Limit(0.5)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// recoveryResult is one recovered (or failed) ledger entry.
type recoveryResult struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	TrackID string `json:"track_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Recover re-acquires failed tracks under corrected metadata. In single mode
// --video-id/--title/--artist name one track; --batch drains the server's
// pending ledger instead.
func (r *Runner) Recover(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	coordinator, err := r.buildRecoveryPipeline(ctx, config)
	if err != nil {
		return err
	}

	backend := services.NewBackendClient(cmd.String("backend-url"), r.httpClient, r.logger)
	resolve := !cmd.Bool("no-resolve")

	if cmd.Bool("batch") {
		return r.recoverBatch(ctx, cmd, coordinator, backend, resolve)
	}

	videoID := trackid.ExtractVideoID(cmd.String("video-id"))
	title := cmd.String("title")
	artist := cmd.String("artist")
	if videoID == "" || title == "" || artist == "" {
		return fmt.Errorf("%w: --video-id, --title and --artist are required without --batch", shared.ErrMissingArgument)
	}

	result := r.recoverOne(ctx, coordinator, backend, models.FailedTrack{
		VideoID: videoID,
		Title:   title,
		Artist:  artist,
	}, resolve)

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	if result.Error != "" {
		return fmt.Errorf("recovery failed: %s", result.Error)
	}
	return r.writePlain("%s %s - %s cached as %s\n", okStyle.Render("recovered"), result.Title, result.Artist, result.TrackID)
}

// buildRecoveryPipeline assembles the same acquisition pipeline the server
// runs, minus the ledger: the backend API owns ledger writes.
func (r *Runner) buildRecoveryPipeline(ctx context.Context, config *shared.Config) (*pipeline.Coordinator, error) {
	store, err := services.NewS3AssetStore(ctx, config.Assets.Bucket, config.Assets.Region, config.Assets.PublicBaseURL, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset store: %w", err)
	}

	innertube := services.NewInnerTubeClient(r.httpClient, config.YouTube.SearchRate, r.logger)
	downloader := services.NewYTDLPDownloader(services.CookieSource{
		Path:   config.YouTube.CookiesPath,
		Base64: config.YouTube.CookiesBase64,
	}, config.Pipeline.WorkDir, r.logger)

	resolver := pipeline.NewResolver(innertube, downloader, config.Pipeline.WorkDir,
		time.Duration(config.Pipeline.StreamTimeoutSeconds)*time.Second, r.logger)

	return pipeline.NewCoordinator(
		innertube,
		resolver,
		pipeline.NewMasterer(r.logger),
		pipeline.NewThumbnailFetcher(r.httpClient),
		store,
		nil,
		config.Pipeline.WorkDir,
		r.logger,
	), nil
}

func (r *Runner) recoverOne(ctx context.Context, coordinator *pipeline.Coordinator, backend *services.BackendClient, entry models.FailedTrack, resolve bool) recoveryResult {
	result := recoveryResult{VideoID: entry.VideoID, Title: entry.Title, Artist: entry.Artist}

	desc, err := coordinator.AcquireVideo(ctx, entry.VideoID, entry.Title, entry.Artist, entry.Duration)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.TrackID = desc.TrackID

	if resolve {
		if err := backend.Resolve(ctx, entry.VideoID, desc.TrackID); err != nil {
			r.logger.Warn("track cached but ledger not updated", "video_id", entry.VideoID, "error", err)
			result.Error = fmt.Sprintf("cached as %s but resolve failed: %v", desc.TrackID, err)
		}
	}

	return result
}

func (r *Runner) recoverBatch(ctx context.Context, cmd *cli.Command, coordinator *pipeline.Coordinator, backend *services.BackendClient, resolve bool) error {
	pending, err := backend.PendingTracks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending tracks: %w", err)
	}
	if len(pending) == 0 {
		return r.writePlain("%s\n", dimStyle.Render("nothing to recover"))
	}

	r.logger.Info("starting batch recovery", "pending", len(pending))

	limiter := rate.NewLimiter(batchPace, 1)
	results := make([]recoveryResult, 0, len(pending))
	recovered := 0

	for _, entry := range pending {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		result := r.recoverOne(ctx, coordinator, backend, entry, resolve)
		if result.Error == "" {
			recovered++
		}
		results = append(results, result)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"recovered": recovered,
			"failed":    len(results) - recovered,
			"results":   results,
		}, true)
	}

	for _, result := range results {
		if result.Error == "" {
			r.writePlain("%s %s - %s (%s)\n", okStyle.Render("✓"), result.Title, result.Artist, result.TrackID)
		} else {
			r.writePlain("%s %s - %s: %s\n", failStyle.Render("✗"), result.Title, result.Artist, result.Error)
		}
	}
	r.writePlain("%s\n", dimStyle.Render(fmt.Sprintf("%d recovered, %d failed", recovered, len(results)-recovered)))

	return nil
}
