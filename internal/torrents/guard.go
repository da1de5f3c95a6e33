package torrents

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"anitorrent/internal/services"
)

const (
	// Downloads must leave this much free space behind.
	minFreeBytes = 2 << 30

	// Space headroom over the advertised torrent size.
	spaceHeadroom = 1.1

	// Files untouched for this long and not in the seeding set are fair
	// game for the cleanup pass.
	staleFileAge = 12 * time.Hour
)

// freeBytes reports the space available to unprivileged writes on the
// filesystem holding dir.
func freeBytes(dir string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// ensureSpace verifies the download directory can hold required bytes plus
// headroom. When it cannot, one cleanup pass runs and the check repeats;
// a second shortfall is ErrInsufficientSpace, which aborts the batch.
func (e *Engine) ensureSpace(required int64) error {
	if required <= 0 {
		return nil
	}
	needed := int64(float64(required) * spaceHeadroom)

	free, err := freeBytes(e.cfg.DownloadDir)
	if err != nil {
		return services.Wrap(services.ErrValidation, "torrents", "space check", e.cfg.DownloadDir, err)
	}
	if free >= needed && free-required >= minFreeBytes {
		return nil
	}

	e.cleanupDownloadDir()

	free, err = freeBytes(e.cfg.DownloadDir)
	if err != nil {
		return services.Wrap(services.ErrValidation, "torrents", "space check", e.cfg.DownloadDir, err)
	}
	if free < needed || free-required < minFreeBytes {
		return services.Wrap(services.ErrInsufficientSpace, "torrents", "space check",
			fmt.Sprintf("need %d bytes plus headroom, %d free in %s", required, free, e.cfg.DownloadDir), nil)
	}
	return nil
}

// cleanupDownloadDir unlinks files older than staleFileAge that no seeding
// slot owns. Best effort; failures are logged and skipped.
func (e *Engine) cleanupDownloadDir() {
	retained := e.seedingPaths()
	cutoff := time.Now().Add(-staleFileAge)

	entries, err := os.ReadDir(e.cfg.DownloadDir)
	if err != nil {
		e.logger.Warn("cleanup pass skipped", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(e.cfg.DownloadDir, entry.Name())
		if _, seeding := retained[path]; seeding {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			e.logger.Warn("cleanup unlink failed", "path", path, "error", err)
			continue
		}
		e.logger.Info("stale download removed", "path", path, "size_bytes", info.Size())
	}
}

func (e *Engine) seedingPaths() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	paths := make(map[string]struct{}, len(e.seeding))
	for _, slot := range e.seeding {
		paths[slot.path] = struct{}{}
	}
	return paths
}
