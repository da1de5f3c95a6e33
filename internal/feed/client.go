package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

const (
	fetchAttempts = 3
	fetchBackoff  = time.Second
)

// HTTPDoer describes the HTTP client used by the feed client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches the torrent RSS feed.
type Client struct {
	url    string
	client HTTPDoer
	logger *slog.Logger
}

// NewClient constructs a feed client with the given request timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "feed"),
	}
}

// SetHTTPClient overrides the HTTP client (used in tests).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.client = client
}

// Fetch retrieves the current feed. Transport failures are retried with a
// fixed backoff; a non-2xx response fails without retry.
func (c *Client) Fetch(ctx context.Context) ([]Item, error) {
	var items []Item
	err := retry.Do(
		func() error {
			fetched, err := c.fetchOnce(ctx)
			if err != nil {
				return err
			}
			items = fetched
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !services.IsCancellation(err) }),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feed", "fetch", c.url, err)
	}
	c.logger.Debug("feed fetched", logging.Int("items", len(items)))
	return items, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return items, nil
}
