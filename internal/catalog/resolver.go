package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/singleflight"

	"anitorrent/internal/feed"
	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

const (
	resolveAttempts = 3
	resolveBackoff  = time.Second
)

// EpisodeKey is the canonical identity used everywhere downstream of the
// resolver.
type EpisodeKey struct {
	SeriesID      int
	EpisodeNumber int
}

func (k EpisodeKey) String() string {
	return fmt.Sprintf("%d/%d", k.SeriesID, k.EpisodeNumber)
}

// Resolution is the successful output of a lookup.
type Resolution struct {
	Key          EpisodeKey
	SeriesTitle  string
	ThumbnailURL string
}

// HTTPDoer describes the HTTP client used by the resolver.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver maps feed items onto episode keys using the mapping catalog.
// Concurrent lookups for the same series share a single in-flight request.
type Resolver struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
	group   singleflight.Group
}

// NewResolver constructs a resolver against the mapping service base URL.
func NewResolver(baseURL string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "catalog"),
	}
}

// SetHTTPClient overrides the HTTP client (used in tests).
func (r *Resolver) SetHTTPClient(client HTTPDoer) {
	r.client = client
}

type mappingResponse struct {
	Mappings struct {
		AnilistID int `json:"anilist_id"`
		MalID     int `json:"mal_id"`
	} `json:"mappings"`
	Episodes map[string]mappingEpisode `json:"episodes"`
	Titles   map[string]string         `json:"titles"`
}

type mappingEpisode struct {
	Episode  int     `json:"episode"`
	AnidbEid int     `json:"anidbEid"`
	Image    string  `json:"image"`
	Title    anyTitle `json:"title"`
	Airdate  string  `json:"airdate"`
	Length   int     `json:"length"`
}

// anyTitle tolerates both string titles and localized title objects.
type anyTitle struct {
	value string
}

func (t *anyTitle) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		t.value = plain
		return nil
	}
	var localized map[string]string
	if err := json.Unmarshal(data, &localized); err != nil {
		return err
	}
	for _, key := range []string{"en", "x-jat", "ja"} {
		if v, ok := localized[key]; ok && v != "" {
			t.value = v
			return nil
		}
	}
	return nil
}

// Resolve maps a feed item to its canonical key. An item whose catalog
// episode identifier is absent from the mapping, or whose series has no
// mapping at all, is unresolvable and reported via ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, item feed.Item) (Resolution, error) {
	if item.AnidbAid <= 0 {
		return Resolution{}, services.Wrap(services.ErrValidation, "catalog", "resolve", "item has no series identifier", nil)
	}

	mapping, err := r.mappingForSeries(ctx, item.AnidbAid)
	if err != nil {
		return Resolution{}, err
	}
	if mapping.Mappings.AnilistID <= 0 {
		return Resolution{}, services.Wrap(services.ErrNotFound, "catalog", "resolve",
			fmt.Sprintf("no series mapping for anidb %d", item.AnidbAid), nil)
	}

	episode, ok := episodeByAnidbEid(mapping.Episodes, item.AnidbEid)
	if !ok {
		return Resolution{}, services.Wrap(services.ErrNotFound, "catalog", "resolve",
			fmt.Sprintf("no episode mapping for anidb episode %d", item.AnidbEid), nil)
	}

	resolution := Resolution{
		Key:          EpisodeKey{SeriesID: mapping.Mappings.AnilistID, EpisodeNumber: episode.Episode},
		SeriesTitle:  seriesTitle(mapping.Titles),
		ThumbnailURL: episode.Image,
	}
	r.logger.Debug("item resolved",
		logging.String(logging.FieldSeriesID, strconv.Itoa(resolution.Key.SeriesID)),
		logging.Int(logging.FieldEpisode, resolution.Key.EpisodeNumber),
	)
	return resolution, nil
}

// mappingForSeries fetches the series mapping, deduplicating concurrent
// lookups per series id.
func (r *Resolver) mappingForSeries(ctx context.Context, anidbAid int) (*mappingResponse, error) {
	key := strconv.Itoa(anidbAid)
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.fetchMapping(ctx, anidbAid)
	})
	if err != nil {
		return nil, err
	}
	return result.(*mappingResponse), nil
}

func (r *Resolver) fetchMapping(ctx context.Context, anidbAid int) (*mappingResponse, error) {
	url := fmt.Sprintf("%s/mappings?anidb_id=%d", r.baseURL, anidbAid)
	var mapping *mappingResponse
	err := retry.Do(
		func() error {
			fetched, err := r.fetchOnce(ctx, url)
			if err != nil {
				return err
			}
			mapping = fetched
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(resolveAttempts),
		retry.Delay(resolveBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !services.IsAbsence(err) && !services.IsCancellation(err)
		}),
	)
	if err != nil {
		if services.IsAbsence(err) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "catalog", "fetch mapping", url, err)
	}
	return mapping, nil
}

func (r *Resolver) fetchOnce(ctx context.Context, url string) (*mappingResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build mapping request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch mapping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "fetch mapping", "no mapping", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapping service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mapping body: %w", err)
	}
	var mapping mappingResponse
	if err := json.Unmarshal(body, &mapping); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return &mapping, nil
}

func episodeByAnidbEid(episodes map[string]mappingEpisode, anidbEid int) (mappingEpisode, bool) {
	if anidbEid <= 0 {
		return mappingEpisode{}, false
	}
	for _, episode := range episodes {
		if episode.AnidbEid == anidbEid {
			return episode, true
		}
	}
	return mappingEpisode{}, false
}

func seriesTitle(titles map[string]string) string {
	for _, key := range []string{"en", "x-jat", "ja"} {
		if v, ok := titles[key]; ok && v != "" {
			return v
		}
	}
	return ""
}
