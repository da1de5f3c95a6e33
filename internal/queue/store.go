package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"anitorrent/internal/catalog"
	"anitorrent/internal/config"
	"anitorrent/internal/feed"
)

// Store manages pipeline item persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database under the log
// directory and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath opens the journal at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// NewItem journals a fresh feed item in the pending state.
func (s *Store) NewItem(ctx context.Context, entry feed.Item, sessionID string) (*Item, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pipeline_items (
            title, anidb_aid, anidb_eid, torrent_url, total_size, status,
            session_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Title,
		entry.AnidbAid,
		entry.AnidbEid,
		nullableString(entry.TorrentURL),
		entry.TotalSize,
		StatusPending,
		nullableString(sessionID),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an item by identifier. A missing id returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM pipeline_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByEpisodeKey returns the most recent item journaled for a key.
func (s *Store) FindByEpisodeKey(ctx context.Context, key catalog.EpisodeKey) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM pipeline_items
         WHERE series_id = ? AND episode_number = ? ORDER BY id DESC LIMIT 1`,
		key.SeriesID, key.EpisodeNumber,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by episode key: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE pipeline_items
         SET title = ?, anidb_aid = ?, anidb_eid = ?, torrent_url = ?, total_size = ?,
             series_id = ?, episode_number = ?, series_title = ?, thumbnail_url = ?,
             status = ?, info_hash = ?, file_path = ?, video_id = ?, video_uuid = ?,
             short_uuid = ?, session_id = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Title,
		item.AnidbAid,
		item.AnidbEid,
		nullableString(item.TorrentURL),
		item.TotalSize,
		item.SeriesID,
		item.EpisodeNumber,
		nullableString(item.SeriesTitle),
		nullableString(item.ThumbnailURL),
		item.Status,
		nullableString(item.InfoHash),
		nullableString(item.FilePath),
		item.VideoID,
		nullableString(item.VideoUUID),
		nullableString(item.ShortUUID),
		nullableString(item.SessionID),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Transition persists a status change in one step.
func (s *Store) Transition(ctx context.Context, item *Item, status Status) error {
	item.Status = status
	return s.Update(ctx, item)
}

// List returns items filtered by status set, or all items when no status is
// provided, ordered by creation.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM pipeline_items`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pipeline_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Clear removes items. With no statuses everything goes; otherwise only the
// named statuses are removed. Returns the number of deleted rows.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(statuses) == 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM pipeline_items`)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		res, err = s.db.ExecContext(ctx, `DELETE FROM pipeline_items WHERE status IN (`+placeholders+`)`, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	return res.RowsAffected()
}

// SaveSession upserts a session record.
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, started_at, finished_at, processed, succeeded, failed, skipped)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             finished_at = excluded.finished_at,
             processed = excluded.processed,
             succeeded = excluded.succeeded,
             failed = excluded.failed,
             skipped = excluded.skipped`,
		session.ID,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTimeValue(session.FinishedAt),
		session.Processed,
		session.Succeeded,
		session.Failed,
		session.Skipped,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LatestSessions returns the most recent sessions, newest first.
func (s *Store) LatestSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, started_at, finished_at, processed, succeeded, failed, skipped
         FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			session     Session
			startedRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&session.ID, &startedRaw, &finishedRaw,
			&session.Processed, &session.Succeeded, &session.Failed, &session.Skipped); err != nil {
			return nil, err
		}
		if started, err := parseTimeString(startedRaw); err == nil {
			session.StartedAt = started
		}
		if finishedRaw.Valid {
			if finished, err := parseTimeString(finishedRaw.String); err == nil {
				session.FinishedAt = finished
			}
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}
