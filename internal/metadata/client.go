package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"anitorrent/internal/catalog"
	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

const defaultTimeout = 10 * time.Second

// HTTPDoer describes the HTTP client used by the metadata client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an authenticated metadata API client.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	logger  *slog.Logger
}

// NewClient builds a client for the metadata API at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "metadata"),
	}
}

// SetHTTPClient overrides the HTTP client (used in tests).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.client = client
}

// SeriesTitle carries the localized series titles.
type SeriesTitle struct {
	English string `json:"english"`
	Romaji  string `json:"romaji"`
	Native  string `json:"native"`
}

// Series is the metadata API's series record, reduced to what the pipeline
// needs.
type Series struct {
	ID    int         `json:"id"`
	Title SeriesTitle `json:"title"`
}

// Episode is a published episode record as returned by the API.
type Episode struct {
	IDAnilist     int    `json:"idAnilist"`
	EpisodeNumber int    `json:"episodeNumber"`
	PeertubeID    int    `json:"peertubeId"`
	UUID          string `json:"uuid"`
	ShortUUID     string `json:"shortUUID"`
	IsReady       bool   `json:"isReady"`
}

// LocalizedTitle holds the per-language episode titles written to the API.
type LocalizedTitle struct {
	ES string `json:"es"`
	EN string `json:"en"`
	JA string `json:"ja"`
}

// EpisodeRecord is the normalized record posted to the API. IsReady is
// always false on write.
type EpisodeRecord struct {
	IDAnilist     int            `json:"idAnilist"`
	EpisodeNumber int            `json:"episodeNumber"`
	PeertubeID    int            `json:"peertubeId"`
	UUID          string         `json:"uuid"`
	ShortUUID     string         `json:"shortUUID"`
	Password      *string        `json:"password"`
	Title         LocalizedTitle `json:"title"`
	EmbedURL      string         `json:"embedUrl"`
	ThumbnailURL  string         `json:"thumbnailUrl"`
	Description   *string        `json:"description"`
	Duration      *int           `json:"duration"`
	IsReady       bool           `json:"isReady"`
}

// EpisodeExists reports whether the episode is already published. A 404 is
// a definitive "no". Any other failure is an "unknown" answer: the error is
// returned alongside exists=false and callers proceed as if the episode is
// new.
func (c *Client) EpisodeExists(ctx context.Context, key catalog.EpisodeKey) (bool, error) {
	url := fmt.Sprintf("%s/content/episodes/%d/%d", c.baseURL, key.SeriesID, key.EpisodeNumber)
	resp, err := c.get(ctx, url)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "metadata", "probe episode", url, err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
		return true, nil
	default:
		return false, services.Wrap(services.ErrTransient, "metadata", "probe episode",
			fmt.Sprintf("metadata API returned %d", resp.StatusCode), nil)
	}
}

// Series fetches the series record for localized titles.
func (c *Client) Series(ctx context.Context, seriesID int) (Series, error) {
	url := fmt.Sprintf("%s/anime/%d", c.baseURL, seriesID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return Series{}, services.Wrap(services.ErrTransient, "metadata", "fetch series", url, err)
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return Series{}, services.Wrap(services.ErrNotFound, "metadata", "fetch series",
			fmt.Sprintf("series %d not found", seriesID), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return Series{}, services.Wrap(services.ErrTransient, "metadata", "fetch series",
			fmt.Sprintf("metadata API returned %d", resp.StatusCode), nil)
	}

	var series Series
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return Series{}, services.Wrap(services.ErrTransient, "metadata", "fetch series", "parse series body", err)
	}
	return series, nil
}

// ListEpisodes fetches the published episodes of a series.
func (c *Client) ListEpisodes(ctx context.Context, seriesID int) ([]Episode, error) {
	url := fmt.Sprintf("%s/content/episodes/%d", c.baseURL, seriesID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "metadata", "list episodes", url, err)
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "metadata", "list episodes",
			fmt.Sprintf("metadata API returned %d", resp.StatusCode), nil)
	}

	var episodes []Episode
	if err := json.NewDecoder(resp.Body).Decode(&episodes); err != nil {
		return nil, services.Wrap(services.ErrTransient, "metadata", "list episodes", "parse episode list", err)
	}
	return episodes, nil
}

// UpsertEpisode writes the normalized record. The record is forced to
// isReady=false regardless of the caller's value.
func (c *Client) UpsertEpisode(ctx context.Context, record EpisodeRecord) error {
	record.IsReady = false
	body, err := json.Marshal(record)
	if err != nil {
		return services.Wrap(services.ErrValidation, "metadata", "upsert episode", "encode record", err)
	}

	url := c.baseURL + "/content/episodes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "metadata", "upsert episode", url, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.Wrap(services.ErrTransient, "metadata", "upsert episode",
			fmt.Sprintf("metadata API returned %d", resp.StatusCode), nil)
	}
	c.logger.Info("episode record written",
		logging.String(logging.FieldSeriesID, fmt.Sprintf("%d", record.IDAnilist)),
		logging.Int(logging.FieldEpisode, record.EpisodeNumber),
	)
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	return c.client.Do(req)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
