package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, title, anidb_aid, anidb_eid, torrent_url, total_size, series_id, episode_number, series_title, thumbnail_url, status, info_hash, file_path, video_id, video_uuid, short_uuid, session_id, error_message, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		title         string
		anidbAid      int
		anidbEid      int
		torrentURL    sql.NullString
		totalSize     int64
		seriesID      int
		episodeNumber int
		seriesTitle   sql.NullString
		thumbnailURL  sql.NullString
		statusStr     string
		infoHash      sql.NullString
		filePath      sql.NullString
		videoID       int
		videoUUID     sql.NullString
		shortUUID     sql.NullString
		sessionID     sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&anidbAid,
		&anidbEid,
		&torrentURL,
		&totalSize,
		&seriesID,
		&episodeNumber,
		&seriesTitle,
		&thumbnailURL,
		&statusStr,
		&infoHash,
		&filePath,
		&videoID,
		&videoUUID,
		&shortUUID,
		&sessionID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		Title:         title,
		AnidbAid:      anidbAid,
		AnidbEid:      anidbEid,
		TorrentURL:    torrentURL.String,
		TotalSize:     totalSize,
		SeriesID:      seriesID,
		EpisodeNumber: episodeNumber,
		SeriesTitle:   seriesTitle.String,
		ThumbnailURL:  thumbnailURL.String,
		Status:        Status(statusStr),
		InfoHash:      infoHash.String,
		FilePath:      filePath.String,
		VideoID:       videoID,
		VideoUUID:     videoUUID.String,
		ShortUUID:     shortUUID.String,
		SessionID:     sessionID.String,
		ErrorMessage:  errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
