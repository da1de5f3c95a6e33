package peertube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func platformHandler(t *testing.T, tokenGrants *atomic.Int32, states []string, pollCount *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth-clients/local", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"client_id":"cid","client_secret":"csecret"}`))
	})
	mux.HandleFunc("/api/v1/users/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_id") != "cid" {
			t.Errorf("missing client id in grant")
		}
		if tokenGrants != nil {
			tokenGrants.Add(1)
		}
		w.Write([]byte(`{"token_type":"Bearer","access_token":"at1","refresh_token":"rt1","expires_in":3600,"refresh_token_expires_in":7200}`))
	})
	mux.HandleFunc("/api/v1/videos/imports", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at1" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["targetUrl"] == "" {
			t.Errorf("missing targetUrl")
		}
		w.Write([]byte(`{"id":99,"video":{"id":4711,"uuid":"u-u-i-d","shortUUID":"tgjYS5VH2vJ"},"state":{"label":"Pending"}}`))
	})
	mux.HandleFunc("/api/v1/videos/4711", func(w http.ResponseWriter, r *http.Request) {
		idx := int(pollCount.Add(1)) - 1
		if idx >= len(states) {
			idx = len(states) - 1
		}
		resp := map[string]any{
			"id": 4711, "uuid": "u-u-i-d", "shortUUID": "tgjYS5VH2vJ",
			"previewPath": "/lazy-static/previews/u.jpg", "duration": 1420,
			"state": map[string]any{"id": 1, "label": states[idx]},
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client := NewClient(Config{
		BaseURL:   serverURL,
		Username:  "operator",
		Password:  "hunter2",
		TokenPath: filepath.Join(t.TempDir(), "token.json"),
	}, nil)
	client.SetPollInterval(time.Millisecond)
	return client
}

func TestImportByURLAuthenticatesLazily(t *testing.T) {
	var grants, polls atomic.Int32
	server := httptest.NewServer(platformHandler(t, &grants, []string{"Pending"}, &polls))
	defer server.Close()

	client := testClient(t, server.URL)
	result, err := client.ImportByURL(context.Background(), "https://cdn.example.com/videos/ep.mkv", ImportOptions{
		ChannelID: 3,
		Name:      "Some Show - Episode 1",
		Privacy:   1,
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Video.ID != 4711 || result.Video.ShortUUID != "tgjYS5VH2vJ" {
		t.Fatalf("unexpected import result %+v", result)
	}
	if grants.Load() != 1 {
		t.Fatalf("expected one token grant, got %d", grants.Load())
	}
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	var grants, polls atomic.Int32
	server := httptest.NewServer(platformHandler(t, &grants, []string{"Published"}, &polls))
	defer server.Close()

	client := testClient(t, server.URL)
	ctx := context.Background()
	if _, err := client.Video(ctx, 4711); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := client.Video(ctx, 4711); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if grants.Load() != 1 {
		t.Fatalf("token must be reused, saw %d grants", grants.Load())
	}
}

func TestTokenPersistedRoundTrip(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(platformHandler(t, nil, []string{"Published"}, &polls))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.Video(context.Background(), 4711); err != nil {
		t.Fatalf("video: %v", err)
	}

	persisted, found, err := LoadToken(client.tokenPath)
	if err != nil || !found {
		t.Fatalf("expected persisted token, found=%v err=%v", found, err)
	}
	if persisted != client.token {
		t.Fatalf("persisted token %+v differs from in-memory %+v", persisted, client.token)
	}
	if persisted.ExpiresAt <= time.Now().UnixMilli() {
		t.Fatalf("expiry must be an absolute future ms timestamp, got %d", persisted.ExpiresAt)
	}
}

func TestWaitReadyPollsUntilSettled(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(platformHandler(t, nil, []string{"Pending", "To import", "Published"}, &polls))
	defer server.Close()

	client := testClient(t, server.URL)
	result, err := client.WaitReady(context.Background(), 4711, time.Minute)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if !result.Success || result.FinalState != "Published" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Video == nil || result.Video.Duration != 1420 {
		t.Fatalf("expected final video snapshot, got %+v", result.Video)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestWaitReadyZeroBudgetIsOnePollThenTimeout(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(platformHandler(t, nil, []string{"Pending"}, &polls))
	defer server.Close()

	client := testClient(t, server.URL)
	result, err := client.WaitReady(context.Background(), 4711, 0)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if result.Success {
		t.Fatal("expected timeout outcome")
	}
	if result.FinalState != StateTimeout {
		t.Fatalf("expected %q, got %q", StateTimeout, result.FinalState)
	}
	if polls.Load() != 1 {
		t.Fatalf("expected exactly one poll, got %d", polls.Load())
	}
}

func TestEmbedURL(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://tube.example/"}, nil)
	if got := client.EmbedURL("tgjYS5VH2vJ"); got != "https://tube.example/videos/embed/tgjYS5VH2vJ" {
		t.Fatalf("unexpected embed URL %q", got)
	}
}

func TestTokenValidity(t *testing.T) {
	now := time.Now()
	token := Token{
		AccessToken:      "at",
		RefreshToken:     "rt",
		ExpiresAt:        now.Add(time.Hour).UnixMilli(),
		RefreshExpiresAt: now.Add(-time.Hour).UnixMilli(),
	}
	if !token.Valid(now) {
		t.Fatal("access token should be valid")
	}
	if token.RefreshValid(now) {
		t.Fatal("expired refresh token should be invalid")
	}
}
