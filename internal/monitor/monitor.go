package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"anitorrent/internal/config"
	"anitorrent/internal/feed"
	"anitorrent/internal/logging"
	"anitorrent/internal/pipeline"
	"anitorrent/internal/queue"
	"anitorrent/internal/services"
	"anitorrent/internal/torrents"
)

const defaultInterval = 2 * time.Minute

// FeedSource fetches the current feed entries.
type FeedSource interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

// BatchRunner is the slice of the pipeline the monitor drives.
type BatchRunner interface {
	PrepareBatch(ctx context.Context, entries []feed.Item, sessionID string) ([]*queue.Item, error)
	RunItem(ctx context.Context, item *queue.Item, opts pipeline.Options) pipeline.Outcome
}

// SeedingReporter exposes the seeding fleet snapshot for session summaries.
type SeedingReporter interface {
	SeedingStatus() []torrents.SlotStatus
}

// Monitor owns the monitoring loop.
type Monitor struct {
	cfg     *config.Config
	store   *queue.Store
	source  FeedSource
	runner  BatchRunner
	seeding SeedingReporter
	opts    pipeline.Options
	logger  *slog.Logger

	lockPath string
	lock     *flock.Flock

	// OnSummary receives the rendered session summary. Defaults to the log.
	OnSummary func(summary string)
}

// New constructs a monitor. The lock file lives next to the journal database.
func New(cfg *config.Config, store *queue.Store, source FeedSource, runner BatchRunner, seeding SeedingReporter, opts pipeline.Options, logger *slog.Logger) (*Monitor, error) {
	if cfg == nil || store == nil || source == nil || runner == nil {
		return nil, errors.New("monitor requires config, store, feed source, and runner")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "anitorrent.lock")
	return &Monitor{
		cfg:      cfg,
		store:    store,
		source:   source,
		runner:   runner,
		seeding:  seeding,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "monitor"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockPath returns the single-instance lock file path.
func (m *Monitor) LockPath() string { return m.lockPath }

func (m *Monitor) acquireLock() error {
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another anitorrent instance is already running")
	}
	return nil
}

func (m *Monitor) releaseLock() {
	if err := m.lock.Unlock(); err != nil {
		m.logger.Warn("failed to release instance lock", logging.Error(err))
	}
}

// Run executes sessions on the configured interval until the context is
// canceled. An in-flight item finishes before the loop exits.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.acquireLock(); err != nil {
		return err
	}
	defer m.releaseLock()

	interval := time.Duration(m.cfg.Feed.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultInterval
	}
	m.logger.Info("monitor started",
		logging.Duration("interval", interval),
		logging.String("lock", m.lockPath),
	)

	for {
		session, err := m.runSession(ctx)
		if err != nil && !services.IsCancellation(err) {
			m.logger.Error("session failed", logging.Error(err))
		}
		if session != nil {
			m.emitSummary(session)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce executes a single session and returns it. Used by single-run mode.
func (m *Monitor) RunOnce(ctx context.Context) (*queue.Session, error) {
	if err := m.acquireLock(); err != nil {
		return nil, err
	}
	defer m.releaseLock()

	session, err := m.runSession(ctx)
	if session != nil {
		m.emitSummary(session)
	}
	return session, err
}

// runSession fetches the feed once and processes the batch sequentially.
func (m *Monitor) runSession(ctx context.Context) (*queue.Session, error) {
	session := &queue.Session{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	ctx = services.WithSessionID(ctx, session.ID)
	sessionLogger := logging.WithContext(ctx, m.logger)

	entries, err := m.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if limit := m.cfg.Feed.Limit; limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	sessionLogger.Info("session started", logging.Int("feed_items", len(entries)))
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	batch, err := m.runner.PrepareBatch(ctx, entries, session.ID)
	if err != nil {
		return m.finishSession(ctx, session, sessionLogger), err
	}

	aborted := false
	for _, item := range batch {
		if ctx.Err() != nil {
			break
		}
		if aborted {
			item.SetFailed("batch aborted: " + services.ErrInsufficientSpace.Error())
			_ = m.store.Update(ctx, item)
			session.Failed++
			session.Processed++
			continue
		}

		outcome := m.runner.RunItem(ctx, item, m.opts)
		session.Processed++
		switch {
		case outcome.Skipped:
			session.Skipped++
		case outcome.Err != nil:
			session.Failed++
		default:
			session.Succeeded++
		}
		if outcome.AbortsBatch() {
			sessionLogger.Error("batch aborted", logging.Error(outcome.Err))
			aborted = true
		}
	}

	return m.finishSession(ctx, session, sessionLogger), nil
}

func (m *Monitor) finishSession(ctx context.Context, session *queue.Session, logger *slog.Logger) *queue.Session {
	session.FinishedAt = time.Now().UTC()
	if err := m.store.SaveSession(context.WithoutCancel(ctx), session); err != nil {
		logger.Warn("session record not persisted", logging.Error(err))
	}
	logger.Info("session finished",
		logging.Int("processed", session.Processed),
		logging.Int("succeeded", session.Succeeded),
		logging.Int("failed", session.Failed),
		logging.Int("skipped", session.Skipped),
		logging.Duration("elapsed", session.FinishedAt.Sub(session.StartedAt)),
	)
	return session
}

func (m *Monitor) emitSummary(session *queue.Session) {
	var slots []torrents.SlotStatus
	if m.seeding != nil {
		slots = m.seeding.SeedingStatus()
	}
	summary := RenderSummary(session, slots)
	if m.OnSummary != nil {
		m.OnSummary(summary)
		return
	}
	m.logger.Info("session summary\n" + summary)
}
