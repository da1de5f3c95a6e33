package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"anitorrent/internal/catalog"
	"anitorrent/internal/feed"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry() feed.Item {
	return feed.Item{
		Title:      "Some Show - 01 (JA)",
		AnidbAid:   15125,
		AnidbEid:   238312,
		TorrentURL: "magnet:?xt=urn:btih:abc",
		TotalSize:  734003200,
	}
}

func TestNewItemStartsPending(t *testing.T) {
	store := testStore(t)
	item, err := store.NewItem(context.Background(), testEntry(), "session-1")
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if item.Status != StatusPending {
		t.Fatalf("expected pending, got %q", item.Status)
	}
	if item.AnidbAid != 15125 || item.SessionID != "session-1" {
		t.Fatalf("feed identity not persisted: %+v", item)
	}
	if item.TotalSize != 734003200 {
		t.Fatalf("advertised size not persisted: %d", item.TotalSize)
	}
	if item.CreatedAt.IsZero() || item.UpdatedAt.IsZero() {
		t.Fatal("timestamps must be set")
	}
}

func TestUpdateRoundTripsPipelineHandles(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	item, err := store.NewItem(ctx, testEntry(), "")
	if err != nil {
		t.Fatalf("new item: %v", err)
	}

	item.SeriesID = 176301
	item.EpisodeNumber = 1
	item.SeriesTitle = "Some Show"
	item.ThumbnailURL = "https://img.example/1.jpg"
	item.InfoHash = "abcdef"
	item.FilePath = "/downloads/ep1.mkv"
	item.VideoID = 4711
	item.ShortUUID = "tgjYS5VH2vJ"
	item.Status = StatusImported
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusImported || got.VideoID != 4711 || got.ShortUUID != "tgjYS5VH2vJ" {
		t.Fatalf("handles not round-tripped: %+v", got)
	}
	if got.EpisodeKey() != (catalog.EpisodeKey{SeriesID: 176301, EpisodeNumber: 1}) {
		t.Fatalf("unexpected key %v", got.EpisodeKey())
	}
}

func TestFindByEpisodeKeyReturnsLatest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		item, err := store.NewItem(ctx, testEntry(), "")
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		item.SeriesID = 176301
		item.EpisodeNumber = 1
		item.Status = StatusCleaned
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	got, err := store.FindByEpisodeKey(ctx, catalog.EpisodeKey{SeriesID: 176301, EpisodeNumber: 1})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.ID != 2 {
		t.Fatalf("expected latest item, got %+v", got)
	}

	missing, err := store.FindByEpisodeKey(ctx, catalog.EpisodeKey{SeriesID: 9, EpisodeNumber: 9})
	if err != nil || missing != nil {
		t.Fatalf("missing key must be nil, nil: %v %v", missing, err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first, _ := store.NewItem(ctx, testEntry(), "")
	second, _ := store.NewItem(ctx, testEntry(), "")
	if err := store.Transition(ctx, second, StatusFailed); err != nil {
		t.Fatalf("transition: %v", err)
	}

	failed, err := store.List(ctx, StatusFailed)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != second.ID {
		t.Fatalf("unexpected failed items %+v", failed)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID {
		t.Fatalf("unexpected ordering %+v", all)
	}
}

func TestStatsAndClear(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	item, _ := store.NewItem(ctx, testEntry(), "")
	_ = store.Transition(ctx, item, StatusCleaned)
	_, _ = store.NewItem(ctx, testEntry(), "")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusCleaned] != 1 || stats[StatusPending] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	deleted, err := store.Clear(ctx, StatusCleaned)
	if err != nil || deleted != 1 {
		t.Fatalf("clear cleaned: %d %v", deleted, err)
	}
	deleted, err = store.Clear(ctx)
	if err != nil || deleted != 1 {
		t.Fatalf("clear rest: %d %v", deleted, err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	session := &Session{ID: "session-1", StartedAt: time.Now().UTC()}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	session.FinishedAt = session.StartedAt.Add(time.Minute)
	session.Processed = 3
	session.Succeeded = 2
	session.Failed = 1
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("update session: %v", err)
	}

	sessions, err := store.LatestSessions(ctx, 5)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("upsert must not duplicate, got %d", len(sessions))
	}
	got := sessions[0]
	if got.Processed != 3 || got.Succeeded != 2 || got.Failed != 1 {
		t.Fatalf("counters not persisted: %+v", got)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Cleaned "); !ok || status != StatusCleaned {
		t.Fatalf("expected cleaned, got %q %v", status, ok)
	}
	if _, ok := ParseStatus("ripping"); ok {
		t.Fatal("unknown status must not parse")
	}
	if !StatusFailed.IsTerminal() || StatusImported.IsTerminal() {
		t.Fatal("terminal classification wrong")
	}
}
