package torrents

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

func testEngine(t *testing.T, maxSeeding int) *Engine {
	t.Helper()
	return &Engine{
		cfg: Config{
			DownloadDir: t.TempDir(),
			MaxSeeding:  maxSeeding,
		},
		logger:          logging.NewNop(),
		added:           make(map[string]time.Time),
		connsPerTorrent: defaultConnsPerTorrent,
		sweepStop:       make(chan struct{}),
	}
}

func seedFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedRetainEvictsOldestBeyondCapacity(t *testing.T) {
	engine := testEngine(t, 2)
	var evicted []SlotStatus
	engine.OnEvict(func(status SlotStatus) { evicted = append(evicted, status) })

	first := seedFile(t, engine.cfg.DownloadDir, "ep1.mkv")
	second := seedFile(t, engine.cfg.DownloadDir, "ep2.mkv")
	third := seedFile(t, engine.cfg.DownloadDir, "ep3.mkv")

	engine.SeedRetain("hash1", first)
	engine.SeedRetain("hash2", second)
	engine.SeedRetain("hash3", third)

	status := engine.SeedingStatus()
	if len(status) != 2 {
		t.Fatalf("fleet must stay at capacity, got %d slots", len(status))
	}
	if status[0].InfoHash != "hash2" || status[1].InfoHash != "hash3" {
		t.Fatalf("expected oldest evicted, fleet is %+v", status)
	}
	if len(evicted) != 1 || evicted[0].InfoHash != "hash1" {
		t.Fatalf("expected one eviction callback for hash1, got %+v", evicted)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatal("evicted slot's file must be unlinked")
	}
	if _, err := os.Stat(second); err != nil {
		t.Fatal("retained slot's file must survive")
	}
}

func TestStopSeedRemovesSlot(t *testing.T) {
	engine := testEngine(t, 4)
	path := seedFile(t, engine.cfg.DownloadDir, "ep1.mkv")
	engine.SeedRetain("hash1", path)

	if err := engine.StopSeed("hash1", true); err != nil {
		t.Fatalf("stop seed: %v", err)
	}
	if len(engine.SeedingStatus()) != 0 {
		t.Fatal("slot must be removed")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file must be unlinked when deleteFile is set")
	}
	if err := engine.StopSeed("hash1", false); !services.IsAbsence(err) {
		t.Fatalf("stopping an unknown hash must be absence, got %v", err)
	}
}

func TestEnsureSpaceRejectsOversizedDownloads(t *testing.T) {
	engine := testEngine(t, 2)
	// An exbibyte cannot fit anywhere this test runs.
	err := engine.ensureSpace(1 << 60)
	if err == nil {
		t.Fatal("expected insufficient space")
	}
	if !services.AbortsBatch(err) {
		t.Fatalf("insufficient space must abort the batch, got %v", err)
	}
}

func TestEnsureSpaceAcceptsSmallDownloads(t *testing.T) {
	engine := testEngine(t, 2)
	if err := engine.ensureSpace(1); err != nil {
		t.Fatalf("tiny download must pass the guard: %v", err)
	}
	if err := engine.ensureSpace(0); err != nil {
		t.Fatalf("zero bytes skips the guard: %v", err)
	}
}

func TestCleanupPassSparesSeedingAndRecentFiles(t *testing.T) {
	engine := testEngine(t, 2)
	dir := engine.cfg.DownloadDir

	old := seedFile(t, dir, "old.mkv")
	recent := seedFile(t, dir, "recent.mkv")
	seeding := seedFile(t, dir, "seeding.mkv")
	engine.SeedRetain("hash-seeding", seeding)

	past := time.Now().Add(-13 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(seeding, past, past); err != nil {
		t.Fatal(err)
	}

	engine.cleanupDownloadDir()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("stale file must be removed")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatal("recent file must survive")
	}
	if _, err := os.Stat(seeding); err != nil {
		t.Fatal("seeding file must survive regardless of age")
	}
}

func TestSelectIndexSingleFile(t *testing.T) {
	lengths := []int64{734003200}
	if idx := selectIndex(lengths, SelectLargest); idx != 0 {
		t.Fatalf("single file must be selected under largest, got %d", idx)
	}
	if idx := selectIndex(lengths, SelectFirst); idx != 0 {
		t.Fatalf("single file must be selected under first, got %d", idx)
	}
}

func TestSelectIndexLargestOfMany(t *testing.T) {
	lengths := []int64{100, 900, 300}
	if idx := selectIndex(lengths, SelectLargest); idx != 1 {
		t.Fatalf("largest file must win, got %d", idx)
	}
	if idx := selectIndex(lengths, SelectFirst); idx != 0 {
		t.Fatalf("first mode must keep torrent order, got %d", idx)
	}
	if idx := selectIndex(nil, SelectLargest); idx != -1 {
		t.Fatalf("empty torrent must select nothing, got %d", idx)
	}
}

func TestDropForgetsAddedEntry(t *testing.T) {
	engine := testEngine(t, 2)
	engine.added["hash1"] = time.Now()
	engine.added["hash2"] = time.Now()

	engine.dropByHash("hash1")
	if _, ok := engine.added["hash1"]; ok {
		t.Fatal("dropped torrent must leave the added map")
	}
	if _, ok := engine.added["hash2"]; !ok {
		t.Fatal("unrelated entries must survive a drop")
	}

	path := seedFile(t, engine.cfg.DownloadDir, "ep2.mkv")
	engine.SeedRetain("hash2", path)
	if err := engine.StopSeed("hash2", false); err != nil {
		t.Fatalf("stop seed: %v", err)
	}
	if _, ok := engine.added["hash2"]; ok {
		t.Fatal("stopping a seed must prune its added entry")
	}
}

func TestBufferExhaustionDetection(t *testing.T) {
	if isBufferExhaustion(nil) {
		t.Fatal("nil is not exhaustion")
	}
	if !isBufferExhaustion(errDial{}) {
		t.Fatal("ENOBUFS message must be detected")
	}
}

type errDial struct{}

func (errDial) Error() string { return "dial tcp: no buffer space available" }
