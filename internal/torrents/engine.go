package torrents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"anitorrent/internal/logging"
	"anitorrent/internal/services"
)

const (
	defaultPort            = 6881
	portProbeRange         = 50
	defaultDownloadTimeout = 600 * time.Second
	defaultMaxSeeding      = 10
	downloadPollEvery      = 500 * time.Millisecond
	sweepEvery             = 2 * time.Minute
	staleTorrentAge        = 3 * time.Minute
	defaultConnsPerTorrent = 50
)

// Config carries the engine settings.
type Config struct {
	DownloadDir     string
	Port            int
	DownloadTimeout time.Duration
	MaxSeeding      int
}

type seedSlot struct {
	infoHash string
	path     string
	addedAt  time.Time
}

// Engine owns the embedded torrent client, the download directory, and the
// seeding fleet.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	client          *torrent.Client
	seeding         []*seedSlot
	added           map[string]time.Time
	onEvict         []EvictFunc
	connsPerTorrent int

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// New starts the embedded client. When no port is configured the engine
// probes upward from 6881 for a free one.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if cfg.MaxSeeding <= 0 {
		cfg.MaxSeeding = defaultMaxSeeding
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "torrents", "start", cfg.DownloadDir, err)
	}

	engine := &Engine{
		cfg:             cfg,
		logger:          logging.NewComponentLogger(logger, "torrents"),
		added:           make(map[string]time.Time),
		connsPerTorrent: defaultConnsPerTorrent,
		sweepStop:       make(chan struct{}),
	}

	port := cfg.Port
	if port <= 0 {
		probed, err := probePort(defaultPort)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "torrents", "start", "no usable listen port", err)
		}
		port = probed
	}
	engine.cfg.Port = port

	client, err := engine.buildClient(port, engine.connsPerTorrent)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "torrents", "start", "torrent client", err)
	}
	engine.client = client
	engine.logger.Info("torrent client listening", "port", port)

	go engine.sweepLoop()
	return engine, nil
}

// Close stops the sweep and the embedded client. Seeding torrents stop at
// process exit; their files stay on disk.
func (e *Engine) Close() {
	e.sweepOnce.Do(func() { close(e.sweepStop) })
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// OnEvict registers a callback fired whenever a slot leaves the seeding
// fleet through capacity eviction.
func (e *Engine) OnEvict(fn EvictFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvict = append(e.onEvict, fn)
}

// Download fetches the torrent at uri and returns the selected file once it
// is fully on disk. uri may be a magnet link, an HTTP(S) .torrent URL, or a
// local .torrent path.
func (e *Engine) Download(ctx context.Context, uri string, opts DownloadOptions) (*MediaFile, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.DownloadTimeout
	}
	if opts.Select == "" {
		opts.Select = SelectLargest
	}
	if err := e.ensureSpace(opts.ExpectedBytes); err != nil {
		return nil, err
	}

	t, err := e.addTorrent(ctx, uri)
	if err != nil {
		return nil, e.classify(err, "add torrent")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		e.dropTorrent(t)
		return nil, e.deadlineError(ctx, "torrent metadata")
	}

	files := t.Files()
	lengths := make([]int64, len(files))
	for i, f := range files {
		lengths[i] = f.Length()
	}
	idx := selectIndex(lengths, opts.Select)
	if idx < 0 {
		e.dropTorrent(t)
		return nil, services.Wrap(services.ErrValidation, "torrents", "download", "torrent has no files", nil)
	}
	file := files[idx]

	// The metadata knows the real size now; re-check space before pieces
	// start landing.
	if err := e.ensureSpace(file.Length()); err != nil {
		e.dropTorrent(t)
		return nil, err
	}

	for _, f := range files {
		if f == file {
			f.Download()
		} else {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}
	e.logger.Info("download started",
		"torrent", t.Name(),
		logging.FieldInfoHash, t.InfoHash().HexString(),
		"size_bytes", file.Length(),
	)

	// The client only surfaces socket-level errors when a torrent is added.
	// Buffer exhaustion during the transfer shows up as a stall and leaves
	// through the timeout path below.
	ticker := time.NewTicker(downloadPollEvery)
	defer ticker.Stop()
	for file.BytesCompleted() < file.Length() {
		select {
		case <-ctx.Done():
			e.dropTorrent(t)
			return nil, e.deadlineError(ctx, "download")
		case <-ticker.C:
		}
	}

	media := &MediaFile{
		Path:        filepath.Join(e.cfg.DownloadDir, file.Path()),
		SizeBytes:   file.Length(),
		InfoHash:    t.InfoHash().HexString(),
		TorrentName: t.Name(),
	}
	e.logger.Info("download complete", "path", media.Path, logging.FieldInfoHash, media.InfoHash)

	if opts.KeepSeeding {
		e.SeedRetain(media.InfoHash, media.Path)
	} else {
		e.dropTorrent(t)
	}
	return media, nil
}

// SeedRetain inserts the torrent into the seeding fleet. When the fleet is
// over capacity the oldest slot is evicted: its torrent dropped, its file
// unlinked, and registered callbacks notified.
func (e *Engine) SeedRetain(infoHash, path string) {
	e.mu.Lock()
	e.seeding = append(e.seeding, &seedSlot{infoHash: infoHash, path: path, addedAt: time.Now()})
	var evicted []*seedSlot
	for len(e.seeding) > e.cfg.MaxSeeding {
		evicted = append(evicted, e.seeding[0])
		e.seeding = e.seeding[1:]
	}
	callbacks := append([]EvictFunc(nil), e.onEvict...)
	e.mu.Unlock()

	for _, slot := range evicted {
		e.evict(slot, callbacks)
	}
}

// StopSeed removes a torrent from the fleet, optionally unlinking its file.
func (e *Engine) StopSeed(infoHash string, deleteFile bool) error {
	e.mu.Lock()
	var slot *seedSlot
	for i, s := range e.seeding {
		if s.infoHash == infoHash {
			slot = s
			e.seeding = append(e.seeding[:i], e.seeding[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if slot == nil {
		return services.Wrap(services.ErrNotFound, "torrents", "stop seed", infoHash, nil)
	}
	e.dropByHash(infoHash)
	if deleteFile {
		if err := os.Remove(slot.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrValidation, "torrents", "stop seed", slot.path, err)
		}
	}
	e.logger.Info("seeding stopped", logging.FieldInfoHash, infoHash, "deleted", deleteFile)
	return nil
}

// SeedingStatus snapshots the fleet, oldest first, enriched with live
// transfer counters where the torrent is still in the client.
func (e *Engine) SeedingStatus() []SlotStatus {
	e.mu.Lock()
	slots := append([]*seedSlot(nil), e.seeding...)
	client := e.client
	e.mu.Unlock()

	live := map[string]*torrent.Torrent{}
	if client != nil {
		for _, t := range client.Torrents() {
			live[t.InfoHash().HexString()] = t
		}
	}

	statuses := make([]SlotStatus, 0, len(slots))
	for _, slot := range slots {
		status := SlotStatus{InfoHash: slot.infoHash, Path: slot.path, AddedAt: slot.addedAt}
		if t, ok := live[slot.infoHash]; ok {
			stats := t.Stats()
			status.UploadedBytes = stats.BytesWrittenData.Int64()
			status.DownloadedBytes = stats.BytesReadData.Int64()
			status.ActivePeers = stats.ActivePeers
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Reset tears the client down and rebuilds it with default limits. The
// seeding fleet is cleared; files stay on disk.
func (e *Engine) Reset() error {
	return e.rebuild(defaultConnsPerTorrent)
}

func (e *Engine) evict(slot *seedSlot, callbacks []EvictFunc) {
	status := SlotStatus{InfoHash: slot.infoHash, Path: slot.path, AddedAt: slot.addedAt}
	e.dropByHash(slot.infoHash)
	if err := os.Remove(slot.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("eviction unlink failed", "path", slot.path, "error", err)
	}
	e.logger.Info("seeding slot evicted", logging.FieldInfoHash, slot.infoHash, "path", slot.path)
	for _, fn := range callbacks {
		fn(status)
	}
}

// dropTorrent removes a torrent from the client and from the added
// bookkeeping, which would otherwise grow for the life of the process.
func (e *Engine) dropTorrent(t *torrent.Torrent) {
	t.Drop()
	e.forget(t.InfoHash().HexString())
}

func (e *Engine) forget(infoHash string) {
	e.mu.Lock()
	delete(e.added, infoHash)
	e.mu.Unlock()
}

func (e *Engine) dropByHash(infoHash string) {
	e.forget(infoHash)
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return
	}
	for _, t := range client.Torrents() {
		if t.InfoHash().HexString() == infoHash {
			t.Drop()
			return
		}
	}
}

func (e *Engine) addTorrent(ctx context.Context, uri string) (*torrent.Torrent, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return nil, errors.New("torrent client is closed")
	}

	var (
		t   *torrent.Torrent
		err error
	)
	switch {
	case strings.HasPrefix(uri, "magnet:"):
		t, err = client.AddMagnet(uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		t, err = e.addTorrentURL(ctx, client, uri)
	default:
		t, err = client.AddTorrentFromFile(uri)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.added[t.InfoHash().HexString()] = time.Now()
	e.mu.Unlock()
	return t, nil
}

func (e *Engine) addTorrentURL(ctx context.Context, client *torrent.Client, uri string) (*torrent.Torrent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build torrent request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrent file fetch returned %d", resp.StatusCode)
	}
	mi, err := metainfo.Load(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse torrent file: %w", err)
	}
	return client.AddTorrent(mi)
}

// classify maps client errors onto the taxonomy. Buffer exhaustion triggers
// a rebuild with halved connection limits before resurfacing, so the caller
// can retry the item against the recovered client.
func (e *Engine) classify(err error, op string) error {
	if isBufferExhaustion(err) {
		limit := max(e.connsPerTorrent/2, 5)
		if rebuildErr := e.rebuild(limit); rebuildErr != nil {
			e.logger.Error("client rebuild failed", "error", rebuildErr)
		}
		return services.Wrap(services.ErrBufferExhausted, "torrents", op, "socket buffers exhausted, client rebuilt", err)
	}
	return services.Wrap(services.ErrTransient, "torrents", op, "torrent client", err)
}

func (e *Engine) deadlineError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "torrents", op, "deadline exceeded", ctx.Err())
	}
	return services.Wrap(services.ErrCanceled, "torrents", op, "canceled", ctx.Err())
}

// rebuild replaces the embedded client. Registered seeding slots cannot
// survive a rebuild, so the fleet is cleared; files remain on disk.
func (e *Engine) rebuild(connsPerTorrent int) error {
	e.mu.Lock()
	old := e.client
	e.client = nil
	e.seeding = nil
	e.added = make(map[string]time.Time)
	e.connsPerTorrent = connsPerTorrent
	port := e.cfg.Port
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	client, err := e.buildClient(port, connsPerTorrent)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "torrents", "rebuild", "torrent client", err)
	}
	e.mu.Lock()
	e.client = client
	e.mu.Unlock()
	e.logger.Info("torrent client rebuilt", "conns_per_torrent", connsPerTorrent)
	return nil
}

func (e *Engine) buildClient(port, connsPerTorrent int) (*torrent.Client, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = e.cfg.DownloadDir
	cfg.ListenPort = port
	cfg.Seed = true
	if connsPerTorrent > 0 {
		cfg.EstablishedConnsPerTorrent = connsPerTorrent
		cfg.HalfOpenConnsPerTorrent = max(connsPerTorrent/5, 1)
	}
	return torrent.NewClient(cfg)
}

// sweepLoop periodically drops completed non-seeding torrents and stalled
// ones (no progress, no peers, past the stale age).
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.sweepStop:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	e.mu.Lock()
	client := e.client
	retained := make(map[string]struct{}, len(e.seeding))
	for _, slot := range e.seeding {
		retained[slot.infoHash] = struct{}{}
	}
	added := make(map[string]time.Time, len(e.added))
	for k, v := range e.added {
		added[k] = v
	}
	e.mu.Unlock()
	if client == nil {
		return
	}

	for _, t := range client.Torrents() {
		hash := t.InfoHash().HexString()
		if _, seeding := retained[hash]; seeding {
			continue
		}
		if t.Info() != nil && t.BytesCompleted() >= t.Length() {
			e.logger.Debug("sweep dropped completed torrent", logging.FieldInfoHash, hash)
			e.dropTorrent(t)
			continue
		}
		addedAt, known := added[hash]
		stats := t.Stats()
		if known && t.BytesCompleted() == 0 && stats.ActivePeers == 0 && time.Since(addedAt) > staleTorrentAge {
			e.logger.Info("sweep dropped stalled torrent", logging.FieldInfoHash, hash)
			e.dropTorrent(t)
		}
	}
}

// selectIndex picks which file of the torrent becomes the media file. A
// single-file torrent returns that file under either mode; an empty torrent
// returns -1.
func selectIndex(lengths []int64, mode FileSelect) int {
	if len(lengths) == 0 {
		return -1
	}
	if mode == SelectFirst {
		return 0
	}
	largest := 0
	for i := 1; i < len(lengths); i++ {
		if lengths[i] > lengths[largest] {
			largest = i
		}
	}
	return largest
}

func probePort(start int) (int, error) {
	for port := start; port < start+portProbeRange; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		listener.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d-%d", start, start+portProbeRange-1)
}

func isBufferExhaustion(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ENOBUFS) || strings.Contains(err.Error(), "no buffer space available")
}
