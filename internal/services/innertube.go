package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/models"
	"golang.org/x/time/rate"
)

const (
	defaultInnerTubeBaseURL = "https://www.youtube.com/youtubei/v1"

	webClientName     = "WEB"
	webClientVersion  = "2.20240726.00.00"
	androidClientName = "ANDROID"
	androidVersion    = "19.09.37"
	androidSDKVersion = 30

	defaultSearchRate = 5.0
)

// FallbackThumbnail returns the deterministic thumbnail URL for a video,
// used whenever the provider does not hand one back.
func FallbackThumbnail(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID)
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// InnerTubeClient implements [SearchProvider] and [StreamProvider] against
// the InnerTube API. Search uses the WEB client; stream resolution uses the
// ANDROID client, which returns direct (unsigned) stream URLs when the video
// is playable.
type InnerTubeClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewInnerTubeClient creates an InnerTube client. searchRate bounds search
// requests per second; <= 0 uses the default.
func NewInnerTubeClient(client *http.Client, searchRate float64, logger *log.Logger) *InnerTubeClient {
	if client == nil {
		client = http.DefaultClient
	}
	if searchRate <= 0 {
		searchRate = defaultSearchRate
	}

	return &InnerTubeClient{
		baseURL:    defaultInnerTubeBaseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(searchRate), 1),
		logger:     logger,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *InnerTubeClient) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

type innerTubeContext struct {
	Client innerTubeClientInfo `json:"client"`
}

type innerTubeClientInfo struct {
	ClientName       string `json:"clientName"`
	ClientVersion    string `json:"clientVersion"`
	AndroidSDKVersion int   `json:"androidSdkVersion,omitempty"`
}

func (c *InnerTubeClient) post(ctx context.Context, endpoint string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("innertube %s: status %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// searchResponse mirrors the slice of the WEB search response we care about.
type searchResponse struct {
	Contents struct {
		TwoColumnSearchResultsRenderer struct {
			PrimaryContents struct {
				SectionListRenderer struct {
					Contents []struct {
						ItemSectionRenderer struct {
							Contents []struct {
								VideoRenderer *videoRenderer `json:"videoRenderer"`
							} `json:"contents"`
						} `json:"itemSectionRenderer"`
					} `json:"contents"`
				} `json:"sectionListRenderer"`
			} `json:"primaryContents"`
		} `json:"twoColumnSearchResultsRenderer"`
	} `json:"contents"`
}

type videoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"title"`
	OwnerText struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"ownerText"`
	Thumbnail struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
	LengthText struct {
		SimpleText string `json:"simpleText"`
	} `json:"lengthText"`
}

// Search implements [SearchProvider] using the InnerTube WEB client.
func (c *InnerTubeClient) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit: %w", err)
	}

	payload := struct {
		Context innerTubeContext `json:"context"`
		Query   string           `json:"query"`
	}{
		Context: innerTubeContext{Client: innerTubeClientInfo{
			ClientName:    webClientName,
			ClientVersion: webClientVersion,
		}},
		Query: query,
	}

	var resp searchResponse
	if err := c.post(ctx, "search", payload, &resp); err != nil {
		return nil, err
	}

	var tracks []models.SearchResult
	for _, section := range resp.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer.Contents {
		for _, item := range section.ItemSectionRenderer.Contents {
			if len(tracks) >= limit {
				break
			}

			video := item.VideoRenderer
			if video == nil || video.VideoID == "" || len(video.Title.Runs) == 0 {
				continue
			}

			artist := "Unknown Artist"
			if len(video.OwnerText.Runs) > 0 {
				artist = video.OwnerText.Runs[0].Text
			}

			thumbnail := FallbackThumbnail(video.VideoID)
			if n := len(video.Thumbnail.Thumbnails); n > 0 {
				thumbnail = video.Thumbnail.Thumbnails[n-1].URL
			}

			tracks = append(tracks, models.SearchResult{
				VideoID:   video.VideoID,
				Title:     video.Title.Runs[0].Text,
				Artist:    artist,
				Thumbnail: thumbnail,
				Duration:  parseLengthText(video.LengthText.SimpleText),
				URL:       WatchURL(video.VideoID),
			})
		}
	}

	return tracks, nil
}

// playerResponse mirrors the slice of the ANDROID player response we care about.
type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
	} `json:"videoDetails"`
	StreamingData struct {
		AdaptiveFormats []adaptiveFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

type adaptiveFormat struct {
	MimeType string `json:"mimeType"`
	Bitrate  int    `json:"bitrate"`
	URL      string `json:"url"`
}

// GetStream implements [StreamProvider] using the InnerTube ANDROID client.
//
// Returns (nil, nil) when the video is not playable, exposes no audio
// variants, or the best variant has no direct URL (signature required).
func (c *InnerTubeClient) GetStream(ctx context.Context, videoID string) (*StreamInfo, error) {
	payload := struct {
		Context innerTubeContext `json:"context"`
		VideoID string           `json:"videoId"`
	}{
		Context: innerTubeContext{Client: innerTubeClientInfo{
			ClientName:        androidClientName,
			ClientVersion:     androidVersion,
			AndroidSDKVersion: androidSDKVersion,
		}},
		VideoID: videoID,
	}

	var resp playerResponse
	if err := c.post(ctx, "player", payload, &resp); err != nil {
		return nil, err
	}

	if resp.PlayabilityStatus.Status != "OK" {
		if c.logger != nil {
			c.logger.Warn("innertube playability denied", "video_id", videoID, "reason", resp.PlayabilityStatus.Reason)
		}
		return nil, nil
	}

	var audio []adaptiveFormat
	for _, f := range resp.StreamingData.AdaptiveFormats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			audio = append(audio, f)
		}
	}
	if len(audio) == 0 {
		if c.logger != nil {
			c.logger.Warn("innertube returned no audio formats", "video_id", videoID)
		}
		return nil, nil
	}

	// Highest bitrate wins; equal bitrates keep provider order.
	sort.SliceStable(audio, func(i, j int) bool { return audio[i].Bitrate > audio[j].Bitrate })
	best := audio[0]

	if best.URL == "" {
		if c.logger != nil {
			c.logger.Warn("innertube stream requires signature", "video_id", videoID)
		}
		return nil, nil
	}

	duration, _ := strconv.Atoi(resp.VideoDetails.LengthSeconds)

	info := &StreamInfo{
		StreamURL: best.URL,
		Title:     resp.VideoDetails.Title,
		Artist:    resp.VideoDetails.Author,
		Thumbnail: FallbackThumbnail(videoID),
		Duration:  duration,
		MimeType:  best.MimeType,
	}
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if info.Artist == "" {
		info.Artist = "Unknown Artist"
	}

	return info, nil
}

// parseLengthText converts "m:ss" or "h:mm:ss" to seconds, 0 when unknown.
func parseLengthText(text string) int {
	if text == "" {
		return 0
	}

	parts := strings.Split(text, ":")
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}

	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	return total
}
