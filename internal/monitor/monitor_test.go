package monitor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anitorrent/internal/config"
	"anitorrent/internal/feed"
	"anitorrent/internal/logging"
	"anitorrent/internal/pipeline"
	"anitorrent/internal/queue"
	"anitorrent/internal/services"
	"anitorrent/internal/torrents"
)

type fakeSource struct {
	items []feed.Item
	calls int
}

func (f *fakeSource) Fetch(context.Context) ([]feed.Item, error) {
	f.calls++
	return f.items, nil
}

type fakeRunner struct {
	store    *queue.Store
	outcomes []pipeline.Outcome
	prepared []feed.Item
	runs     int
}

func (f *fakeRunner) PrepareBatch(ctx context.Context, entries []feed.Item, sessionID string) ([]*queue.Item, error) {
	f.prepared = entries
	items := make([]*queue.Item, 0, len(entries))
	for _, entry := range entries {
		item, err := f.store.NewItem(ctx, entry, sessionID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *fakeRunner) RunItem(context.Context, *queue.Item, pipeline.Options) pipeline.Outcome {
	outcome := f.outcomes[f.runs%len(f.outcomes)]
	f.runs++
	return outcome
}

type fakeSeeding struct {
	slots []torrents.SlotStatus
}

func (f *fakeSeeding) SeedingStatus() []torrents.SlotStatus { return f.slots }

func feedEntries(n int) []feed.Item {
	entries := make([]feed.Item, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, feed.Item{
			Title:      "Some Show - 01 (JA)",
			AnidbAid:   15125,
			AnidbEid:   238312 + i,
			TorrentURL: "magnet:?xt=urn:btih:abc",
		})
	}
	return entries
}

func testMonitor(t *testing.T, source *fakeSource, outcomes []pipeline.Outcome, limit int) (*Monitor, *fakeRunner, *queue.Store) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Paths.LogDir = dir
	cfg.Feed.Limit = limit
	cfg.Feed.IntervalMinutes = 1

	store, err := queue.OpenPath(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	runner := &fakeRunner{store: store, outcomes: outcomes}
	m, err := New(cfg, store, source, runner, &fakeSeeding{}, pipeline.Options{}, logging.NewNop())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	m.OnSummary = func(string) {}
	return m, runner, store
}

func TestRunOnceCountsOutcomes(t *testing.T) {
	source := &fakeSource{items: feedEntries(3)}
	outcomes := []pipeline.Outcome{
		{Status: queue.StatusCleaned},
		{Status: queue.StatusCleaned, Skipped: true},
		{Status: queue.StatusFailed, Err: services.Wrap(services.ErrTransient, "t", "o", "boom", nil)},
	}
	m, runner, store := testMonitor(t, source, outcomes, 0)

	session, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if session.Processed != 3 || session.Succeeded != 1 || session.Skipped != 1 || session.Failed != 1 {
		t.Fatalf("unexpected counters %+v", session)
	}
	if runner.runs != 3 {
		t.Fatalf("expected 3 runs, got %d", runner.runs)
	}
	if session.FinishedAt.IsZero() {
		t.Fatal("session must be finished")
	}

	persisted, err := store.LatestSessions(context.Background(), 1)
	if err != nil || len(persisted) != 1 {
		t.Fatalf("session not persisted: %v %v", persisted, err)
	}
	if persisted[0].Succeeded != 1 || persisted[0].Failed != 1 {
		t.Fatalf("persisted counters wrong: %+v", persisted[0])
	}
}

func TestRunOnceAppliesFeedLimit(t *testing.T) {
	source := &fakeSource{items: feedEntries(5)}
	m, runner, _ := testMonitor(t, source, []pipeline.Outcome{{Status: queue.StatusCleaned}}, 2)

	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(runner.prepared) != 2 {
		t.Fatalf("limit not applied, prepared %d entries", len(runner.prepared))
	}
}

func TestRunOnceAbortsBatchOnInsufficientSpace(t *testing.T) {
	source := &fakeSource{items: feedEntries(3)}
	outcomes := []pipeline.Outcome{
		{Status: queue.StatusFailed, Err: services.Wrap(services.ErrInsufficientSpace, "torrents", "ensure space", "full", nil)},
	}
	m, runner, store := testMonitor(t, source, outcomes, 0)

	session, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if runner.runs != 1 {
		t.Fatalf("abort must stop further runs, got %d", runner.runs)
	}
	if session.Processed != 3 || session.Failed != 3 {
		t.Fatalf("remaining items must count as failed: %+v", session)
	}

	failed, err := store.List(context.Background(), queue.StatusFailed)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("remaining items must be journaled failed, got %d", len(failed))
	}
	for _, item := range failed {
		if !strings.Contains(item.ErrorMessage, "batch aborted") {
			t.Fatalf("missing abort reason: %q", item.ErrorMessage)
		}
	}
}

func TestRunOnceReleasesLock(t *testing.T) {
	source := &fakeSource{items: nil}
	m, _, _ := testMonitor(t, source, []pipeline.Outcome{{Status: queue.StatusCleaned}}, 0)

	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("lock must be released between runs: %v", err)
	}
}

func TestRenderSummaryIncludesSeeding(t *testing.T) {
	session := &queue.Session{
		ID:         "session-1",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Processed:  2,
		Succeeded:  2,
	}
	slots := []torrents.SlotStatus{{
		InfoHash:      "abcdef0123456789abcdef0123456789abcdef01",
		AddedAt:       time.Now().Add(-10 * time.Minute),
		UploadedBytes: 3 << 20,
		ActivePeers:   4,
	}}

	out := RenderSummary(session, slots)
	if !strings.Contains(out, "session-1") || !strings.Contains(out, "Seeding (1)") {
		t.Fatalf("summary missing sections:\n%s", out)
	}
	if !strings.Contains(out, "abcdef012345") || !strings.Contains(out, "3.0 MiB") {
		t.Fatalf("seeding row not rendered:\n%s", out)
	}
}
