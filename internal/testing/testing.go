// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/services"
)

// MockSearchProvider is a test double for [services.SearchProvider]
type MockSearchProvider struct {
	Results []models.SearchResult
	Err     error
	Queries []string
}

func (m *MockSearchProvider) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	m.Queries = append(m.Queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && len(m.Results) > limit {
		return m.Results[:limit], nil
	}
	return m.Results, nil
}

// MockStreamProvider is a test double for [services.StreamProvider]
type MockStreamProvider struct {
	Info *services.StreamInfo
	Err  error
}

func (m *MockStreamProvider) GetStream(ctx context.Context, videoID string) (*services.StreamInfo, error) {
	return m.Info, m.Err
}

// MockDownloadProvider is a test double for [services.DownloadProvider] that
// writes a real temp file so file-handling code paths run end to end.
type MockDownloadProvider struct {
	Meta  *models.TrackMetadata
	Err   error
	Calls int
}

func (m *MockDownloadProvider) Download(ctx context.Context, videoID string) (string, *models.TrackMetadata, error) {
	m.Calls++
	if m.Err != nil {
		return "", nil, m.Err
	}

	dir, err := os.MkdirTemp("", "mock_dl_")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, videoID+".mp3")
	if err := os.WriteFile(path, []byte("downloaded audio"), 0o644); err != nil {
		return "", nil, err
	}

	meta := m.Meta
	if meta == nil {
		meta = &models.TrackMetadata{Title: "Unknown Title", Artist: "Unknown Artist"}
	}
	return path, meta, nil
}

// MemoryAssetStore is an in-memory [services.AssetStore]
type MemoryAssetStore struct {
	mu        sync.Mutex
	assets    map[string]map[string]string // key -> context
	order     []string
	UploadErr error
	ExistsErr error
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{assets: map[string]map[string]string{}}
}

func (m *MemoryAssetStore) key(trackID string, kind services.AssetKind) string {
	return string(kind) + "/" + trackID
}

func (m *MemoryAssetStore) Exists(ctx context.Context, trackID string, kind services.AssetKind) (*services.AssetMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ExistsErr != nil {
		return nil, m.ExistsErr
	}

	context, ok := m.assets[m.key(trackID, kind)]
	if !ok {
		return nil, nil
	}

	meta := &services.AssetMetadata{
		URL:     "https://assets.test/" + m.key(trackID, kind),
		Context: context,
	}
	fmt.Sscanf(context["duration"], "%d", &meta.Duration)
	return meta, nil
}

func (m *MemoryAssetStore) Upload(ctx context.Context, localPath, trackID string, kind services.AssetKind, context map[string]string) (*services.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("upload source missing: %w", err)
	}

	key := m.key(trackID, kind)
	if _, exists := m.assets[key]; !exists {
		m.order = append(m.order, key)
	}
	if context == nil {
		context = map[string]string{}
	}
	m.assets[key] = context

	result := &services.UploadResult{URL: "https://assets.test/" + key}
	fmt.Sscanf(context["duration"], "%d", &result.Duration)
	return result, nil
}

func (m *MemoryAssetStore) Delete(ctx context.Context, trackID string, kind services.AssetKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.key(trackID, kind)
	if _, ok := m.assets[key]; !ok {
		return false, nil
	}
	delete(m.assets, key)
	return true, nil
}

func (m *MemoryAssetStore) List(ctx context.Context) ([]models.LibraryTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tracks []models.LibraryTrack
	for i := len(m.order) - 1; i >= 0; i-- {
		key := m.order[i]
		context, ok := m.assets[key]
		if !ok || len(key) < len("audio/") || key[:len("audio/")] != "audio/" {
			continue
		}

		track := models.LibraryTrack{
			TrackID:  key[len("audio/"):],
			Title:    context["title"],
			Artist:   context["artist"],
			AudioURL: "https://assets.test/" + key,
		}
		fmt.Sscanf(context["duration"], "%d", &track.Duration)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Has reports whether an asset was stored. Test inspection helper.
func (m *MemoryAssetStore) Has(trackID string, kind services.AssetKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assets[m.key(trackID, kind)]
	return ok
}

// MemoryLedger records failed tracks in memory
type MemoryLedger struct {
	mu     sync.Mutex
	Tracks []*models.FailedTrack
}

func (m *MemoryLedger) Upsert(ctx context.Context, track *models.FailedTrack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.Tracks {
		if existing.VideoID == track.VideoID {
			m.Tracks[i] = track
			return nil
		}
	}
	m.Tracks = append(m.Tracks, track)
	return nil
}

// PassthroughMasterer returns the input unchanged
type PassthroughMasterer struct{}

func (PassthroughMasterer) Master(ctx context.Context, inputPath string) string {
	return inputPath
}

// MockThumbFetcher writes a fixed jpg to the target directory
type MockThumbFetcher struct {
	Err   error
	Calls int
}

func (m *MockThumbFetcher) Fetch(ctx context.Context, videoID, dir string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}

	path := filepath.Join(dir, videoID+".jpg")
	if err := os.WriteFile(path, []byte("jpg bytes"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustWriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
