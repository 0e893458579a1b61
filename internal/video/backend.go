package video

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"studymate/internal/config"
	"studymate/internal/types"
)

// APIBackend queries an Invidious-compatible JSON search endpoint. The
// endpoint is configured rather than hardwired so deployments can point at
// their own instance.
type APIBackend struct {
	endpoint   string
	httpClient *http.Client
}

// NewAPIBackend builds a backend from the video config. Returns nil when no
// search URL is configured; the matcher treats a nil backend as "no video".
func NewAPIBackend(cfg config.VideoConfig) *APIBackend {
	if cfg.SearchURL == "" {
		return nil
	}
	return &APIBackend{
		endpoint:   cfg.SearchURL,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

type apiVideo struct {
	VideoID    string `json:"videoId"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"videoThumbnails"`
}

// SearchVideos runs one search query and maps the response to candidates.
func (b *APIBackend) SearchVideos(ctx context.Context, query string, limit int) ([]types.VideoCandidate, error) {
	u := fmt.Sprintf("%s?q=%s&type=video", b.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video search HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var videos []apiVideo
	if err := json.Unmarshal(body, &videos); err != nil {
		return nil, fmt.Errorf("parse video search response: %w", err)
	}

	candidates := make([]types.VideoCandidate, 0, limit)
	for _, v := range videos {
		if v.VideoID == "" || v.Title == "" {
			continue
		}
		thumb := ""
		if len(v.Thumbnails) > 0 {
			thumb = v.Thumbnails[0].URL
		}
		candidates = append(candidates, types.VideoCandidate{
			ID:           v.VideoID,
			Title:        v.Title,
			Channel:      v.Author,
			ThumbnailURL: thumb,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
