package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestItemValidity(t *testing.T) {
	valid := Item{Title: "Show - 01 (JA)", AnidbAid: 15125, TorrentURL: "magnet:?xt=urn:btih:abc"}
	if !valid.Valid() {
		t.Fatal("expected item with catalog id to be valid")
	}
	noIDs := Item{Title: "Show - 01", TorrentURL: "magnet:?xt=urn:btih:abc"}
	if noIDs.Valid() {
		t.Fatal("expected item without catalog ids to be invalid")
	}
	noTorrent := Item{Title: "Show - 01", AnidbEid: 238312}
	if noTorrent.Valid() {
		t.Fatal("expected item without torrent uri to be invalid")
	}
}

func TestVariantTag(t *testing.T) {
	if got := (Item{Title: "Show - 01 (JA) [1080p]"}).Variant(); got != VariantJA {
		t.Fatalf("unexpected variant %q", got)
	}
	if got := (Item{Title: "Show - 01 (CA) [1080p]"}).Variant(); got != VariantCA {
		t.Fatalf("unexpected variant %q", got)
	}
	if got := (Item{Title: "Show - 01 [1080p]"}).Variant(); got != VariantNone {
		t.Fatalf("unexpected variant %q", got)
	}
}

func TestEpisodeNumberFromTitle(t *testing.T) {
	item := Item{Title: "Some Show S01E05 1080p WEB x264"}
	if got := item.EpisodeNumber(); got != 5 {
		t.Fatalf("expected episode 5, got %d", got)
	}
}

func TestFetchParsesFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Show - 01 (JA)","anidb_aid":15125,"anidb_eid":238312,
			"torrent_url":"magnet:?xt=urn:btih:abc","total_size":734003200,"seeders":12,"leechers":3}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	items, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if items[0].AnidbEid != 238312 || items[0].TotalSize != 734003200 {
		t.Fatalf("unexpected item %+v", items[0])
	}
}

func TestFetchRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	if _, err := client.Fetch(context.Background()); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}
