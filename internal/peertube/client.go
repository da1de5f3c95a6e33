package peertube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

const (
	credentialAttempts = 3
	credentialBackoff  = 2 * time.Second
	defaultPollEvery   = 10 * time.Second
)

// Video states that mean the platform is still working on the upload.
const (
	StatePending  = "Pending"
	StateToImport = "To import"
	StateTimeout  = "Timeout"
)

// HTTPDoer describes the HTTP client used by the platform client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries the platform connection settings.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	TokenPath string
}

// Client is an authenticated platform client with a lazy token lifecycle.
type Client struct {
	baseURL   string
	username  string
	password  string
	tokenPath string

	httpClient HTTPDoer
	logger     *slog.Logger
	now        func() time.Time
	pollEvery  time.Duration

	mu           sync.Mutex
	token        Token
	clientID     string
	clientSecret string
}

// NewClient builds a platform client. No network traffic happens until the
// first authenticated call.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		tokenPath:  cfg.TokenPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewComponentLogger(logger, "peertube"),
		now:        time.Now,
		pollEvery:  defaultPollEvery,
	}
}

// SetHTTPClient overrides the HTTP client (used in tests).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// SetPollInterval overrides the wait-ready poll cadence (used in tests).
func (c *Client) SetPollInterval(interval time.Duration) {
	c.pollEvery = interval
}

// EmbedURL derives the public embed URL for a published video.
func (c *Client) EmbedURL(shortUUID string) string {
	return c.baseURL + "/videos/embed/" + shortUUID
}

// PreviewURL resolves a video's preview path against the instance base URL.
// Returns empty when the video has no preview.
func (c *Client) PreviewURL(previewPath string) string {
	if previewPath == "" {
		return ""
	}
	return c.baseURL + "/" + strings.TrimLeft(previewPath, "/")
}

// User is the authenticated account, used during configuration checks.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Video is the platform's video record, reduced to pipeline needs.
type Video struct {
	ID          int    `json:"id"`
	UUID        string `json:"uuid"`
	ShortUUID   string `json:"shortUUID"`
	PreviewPath string `json:"previewPath"`
	Duration    int    `json:"duration"`
	State       struct {
		ID    int    `json:"id"`
		Label string `json:"label"`
	} `json:"state"`
}

// StateLabel returns the human-readable transcoding state.
func (v Video) StateLabel() string { return v.State.Label }

// ImportOptions configures a URL import.
type ImportOptions struct {
	ChannelID int
	Name      string
	Privacy   int
	Passwords []string
	Silent    bool
}

// Import is the platform's answer to an import request.
type Import struct {
	ID    int   `json:"id"`
	Video Video `json:"video"`
	State struct {
		Label string `json:"label"`
	} `json:"state"`
}

// ReadyResult is the outcome of waiting for transcoding.
type ReadyResult struct {
	Success    bool
	FinalState string
	Video      *Video
}

// CurrentUser fetches the authenticated account.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/users/me", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ImportByURL asks the platform to pull a video from a public URL. The
// import is asynchronous; the returned video id is polled via WaitReady.
func (c *Client) ImportByURL(ctx context.Context, targetURL string, opts ImportOptions) (Import, error) {
	payload := map[string]any{
		"targetUrl": targetURL,
		"channelId": opts.ChannelID,
		"name":      opts.Name,
		"privacy":   opts.Privacy,
	}
	if len(opts.Passwords) > 0 {
		payload["videoPasswords"] = opts.Passwords
	}
	if opts.Silent {
		payload["silentNotification"] = true
	}

	var result Import
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/videos/imports", payload, &result); err != nil {
		return Import{}, err
	}
	c.logger.Info("import accepted",
		logging.String("name", opts.Name),
		logging.Int("video_id", result.Video.ID),
	)
	return result, nil
}

// Video fetches a video by id.
func (c *Client) Video(ctx context.Context, videoID int) (Video, error) {
	var video Video
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/videos/%d", videoID), nil, &video); err != nil {
		return Video{}, err
	}
	return video, nil
}

// WaitReady polls the video until the platform finishes processing it.
// Ready means the state label left the pending set. maxWait bounds the
// wait; zero means a single poll. Timing out is an outcome, not an error.
func (c *Client) WaitReady(ctx context.Context, videoID int, maxWait time.Duration) (ReadyResult, error) {
	deadline := c.now().Add(maxWait)
	for {
		video, err := c.Video(ctx, videoID)
		if err == nil && ready(video.StateLabel()) {
			c.logger.Info("video ready",
				logging.Int("video_id", videoID),
				logging.String(logging.FieldState, video.StateLabel()),
			)
			return ReadyResult{Success: true, FinalState: video.StateLabel(), Video: &video}, nil
		}
		if err != nil {
			if services.IsCancellation(err) || ctx.Err() != nil {
				return ReadyResult{FinalState: StateTimeout}, services.Wrap(services.ErrCanceled, "peertube", "wait ready", "poll canceled", err)
			}
			c.logger.Warn("video poll failed", logging.Error(err))
		}
		if !c.now().Add(c.pollEvery).Before(deadline) {
			return ReadyResult{Success: false, FinalState: StateTimeout}, nil
		}
		select {
		case <-ctx.Done():
			return ReadyResult{FinalState: StateTimeout}, services.Wrap(services.ErrCanceled, "peertube", "wait ready", "poll canceled", ctx.Err())
		case <-time.After(c.pollEvery):
		}
	}
}

func ready(label string) bool {
	return label != "" && label != StatePending && label != StateToImport
}

// doJSON performs an authenticated JSON request against the API.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	access, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrValidation, "peertube", "encode request", path, err)
		}
		body = strings.NewReader(string(encoded))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "peertube", method+" "+path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "peertube", method+" "+path, "not found", nil)
	}
	if resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "peertube", method+" "+path,
			fmt.Sprintf("platform returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrRejected, "peertube", method+" "+path,
			fmt.Sprintf("platform returned %d", resp.StatusCode), nil)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "peertube", method+" "+path, "parse response", err)
	}
	return nil
}

// ensureToken returns a usable access token, walking the lifecycle:
// in-memory token, persisted token, refresh grant, password grant.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.Valid(now) {
		return c.token.AccessToken, nil
	}

	if c.token.AccessToken == "" && c.tokenPath != "" {
		if persisted, found, err := LoadToken(c.tokenPath); err == nil && found {
			c.token = persisted
			if c.token.Valid(now) {
				return c.token.AccessToken, nil
			}
		}
	}

	if err := c.ensureOAuthClient(ctx); err != nil {
		return "", err
	}

	if c.token.RefreshValid(now) {
		if token, err := c.grant(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.token.RefreshToken},
		}); err == nil {
			c.adoptToken(token)
			return c.token.AccessToken, nil
		} else {
			c.logger.Warn("token refresh failed, falling back to password grant", logging.Error(err))
		}
	}

	token, err := c.grant(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {c.username},
		"password":   {c.password},
	})
	if err != nil {
		return "", err
	}
	c.adoptToken(token)
	return c.token.AccessToken, nil
}

func (c *Client) adoptToken(token Token) {
	c.token = token
	if c.tokenPath == "" {
		return
	}
	if err := SaveToken(c.tokenPath, token); err != nil {
		c.logger.Warn("token persist failed", logging.Error(err))
	}
}

// ensureOAuthClient fetches the local OAuth client credentials once.
func (c *Client) ensureOAuthClient(ctx context.Context) error {
	if c.clientID != "" {
		return nil
	}
	var creds struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/oauth-clients/local", nil)
			if err != nil {
				return err
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("oauth client fetch returned %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&creds)
		},
		retry.Context(ctx),
		retry.Attempts(credentialAttempts),
		retry.Delay(credentialBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "peertube", "fetch oauth client", c.baseURL, err)
	}
	c.clientID = creds.ClientID
	c.clientSecret = creds.ClientSecret
	return nil
}

// grant exchanges credentials for a token via the form token endpoint.
func (c *Client) grant(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/users/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, services.Wrap(services.ErrTransient, "peertube", "token grant", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, services.Wrap(services.ErrRejected, "peertube", "token grant",
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var payload struct {
		TokenType             string `json:"token_type"`
		AccessToken           string `json:"access_token"`
		RefreshToken          string `json:"refresh_token"`
		ExpiresIn             int64  `json:"expires_in"`
		RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, services.Wrap(services.ErrTransient, "peertube", "token grant", "parse token response", err)
	}

	now := c.now()
	return Token{
		TokenType:        payload.TokenType,
		AccessToken:      payload.AccessToken,
		RefreshToken:     payload.RefreshToken,
		ExpiresAt:        now.Add(time.Duration(payload.ExpiresIn) * time.Second).UnixMilli(),
		RefreshExpiresAt: now.Add(time.Duration(payload.RefreshTokenExpiresIn) * time.Second).UnixMilli(),
	}, nil
}
