package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Thumbnails under this size are YouTube's gray placeholder, not real art.
const minThumbnailBytes = 1000

var thumbnailQualities = []string{"maxresdefault", "hqdefault", "mqdefault"}

// ThumbnailFetcher downloads track art to local files.
type ThumbnailFetcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewThumbnailFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewThumbnailFetcher(client *http.Client) *ThumbnailFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &ThumbnailFetcher{
		httpClient: client,
		baseURL:    "https://img.youtube.com",
	}
}

// SetBaseURL overrides the image host. Used by tests.
func (t *ThumbnailFetcher) SetBaseURL(baseURL string) {
	t.baseURL = baseURL
}

// Fetch downloads the best available thumbnail for a video into dir, walking
// the quality ladder from maxres down. Returns the local file path.
func (t *ThumbnailFetcher) Fetch(ctx context.Context, videoID, dir string) (string, error) {
	var lastErr error

	for _, quality := range thumbnailQualities {
		url := fmt.Sprintf("%s/vi/%s/%s.jpg", t.baseURL, videoID, quality)

		path, err := t.download(ctx, url, filepath.Join(dir, videoID+".jpg"))
		if err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no thumbnail available for %s", videoID)
	}
	return "", lastErr
}

func (t *ThumbnailFetcher) download(ctx context.Context, url, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail fetch: status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", err
	}

	if n < minThumbnailBytes {
		os.Remove(dest)
		return "", fmt.Errorf("thumbnail too small (%d bytes), likely a placeholder", n)
	}

	return dest, nil
}
