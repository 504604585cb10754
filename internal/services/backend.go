package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/shared"
)

// BackendClient talks to a running server's failed-tracks API. The recovery
// tool uses it to pull the pending ledger and stamp entries resolved.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewBackendClient creates a client for the given server base URL.
func NewBackendClient(baseURL string, client *http.Client, logger *log.Logger) *BackendClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &BackendClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

func (c *BackendClient) doRequest(ctx context.Context, method, path string, payload, result any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d", shared.ErrAPIRequest, method, path, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// PendingTracks returns the ledger entries still awaiting recovery.
func (c *BackendClient) PendingTracks(ctx context.Context) ([]models.FailedTrack, error) {
	var resp struct {
		FailedTracks []models.FailedTrack `json:"failed_tracks"`
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/api/failed-tracks?status=pending", nil, &resp); err != nil {
		return nil, err
	}

	return resp.FailedTracks, nil
}

// Resolve marks a ledger entry as recovered, recording the track ID it ended
// up cached under. A 404 means the entry is already gone and is not an error.
func (c *BackendClient) Resolve(ctx context.Context, videoID, trackID string) error {
	payload := struct {
		TrackID string `json:"track_id"`
	}{TrackID: trackID}

	status, err := c.doRequest(ctx, http.MethodPost, "/api/failed-tracks/"+videoID+"/resolve", payload, nil)
	if err != nil {
		if status == http.StatusNotFound {
			if c.logger != nil {
				c.logger.Warn("failed track already removed from ledger", "video_id", videoID)
			}
			return nil
		}
		return err
	}

	return nil
}
