package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peerlessmusic/backend/internal/auth"
	"github.com/peerlessmusic/backend/internal/pipeline"
	"github.com/peerlessmusic/backend/internal/repositories"
	"github.com/peerlessmusic/backend/internal/server"
	"github.com/peerlessmusic/backend/internal/services"
	"github.com/peerlessmusic/backend/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve wires the full pipeline and runs the API server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := services.NewS3AssetStore(ctx, config.Assets.Bucket, config.Assets.Region, config.Assets.PublicBaseURL, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create asset store: %w", err)
	}

	innertube := services.NewInnerTubeClient(r.httpClient, config.YouTube.SearchRate, r.logger)
	downloader := services.NewYTDLPDownloader(services.CookieSource{
		Path:   config.YouTube.CookiesPath,
		Base64: config.YouTube.CookiesBase64,
	}, config.Pipeline.WorkDir, r.logger)

	resolver := pipeline.NewResolver(innertube, downloader, config.Pipeline.WorkDir,
		time.Duration(config.Pipeline.StreamTimeoutSeconds)*time.Second, r.logger)

	failed := repositories.NewFailedTrackRepository(db)

	coordinator := pipeline.NewCoordinator(
		innertube,
		resolver,
		pipeline.NewMasterer(r.logger),
		pipeline.NewThumbnailFetcher(r.httpClient),
		store,
		failed,
		config.Pipeline.WorkDir,
		r.logger,
	)

	srv := server.New(config, server.Dependencies{
		Search:      innertube,
		Coordinator: coordinator,
		Store:       store,
		Identities:  repositories.NewIdentityRepository(db),
		Playlists:   repositories.NewPlaylistRepository(db),
		Failed:      failed,
		Tokens:      auth.NewTokenIssuer(config.Auth.JWTSecret, time.Duration(config.Auth.TokenTTLDays)*24*time.Hour),
	}, r.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		r.logger.Info("shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
