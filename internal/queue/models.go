package queue

import (
	"strings"
	"time"

	"anitorrent/internal/catalog"
)

// Status tracks an item through the pipeline states.
type Status string

const (
	StatusPending         Status = "pending"
	StatusResolving       Status = "resolving"
	StatusResolved        Status = "resolved"
	StatusUnique          Status = "unique"
	StatusNew             Status = "new"
	StatusDownloading     Status = "downloading"
	StatusDownloaded      Status = "downloaded"
	StatusProbing         Status = "probing"
	StatusProbed          Status = "probed"
	StatusExtracting      Status = "extracting"
	StatusExtracted       Status = "extracted"
	StatusStaging         Status = "staging"
	StatusStaged          Status = "staged"
	StatusImporting       Status = "importing"
	StatusImported        Status = "imported"
	StatusWaiting         Status = "waiting"
	StatusReady           Status = "ready"
	StatusWritingMetadata Status = "writing_metadata"
	StatusMetadataWritten Status = "metadata_written"
	StatusCleaned         Status = "cleaned"
	StatusFailed          Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusResolving,
	StatusResolved,
	StatusUnique,
	StatusNew,
	StatusDownloading,
	StatusDownloaded,
	StatusProbing,
	StatusProbed,
	StatusExtracting,
	StatusExtracted,
	StatusStaging,
	StatusStaged,
	StatusImporting,
	StatusImported,
	StatusWaiting,
	StatusReady,
	StatusWritingMetadata,
	StatusMetadataWritten,
	StatusCleaned,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends an item's run.
func (s Status) IsTerminal() bool {
	return s == StatusCleaned || s == StatusFailed
}

// Item is one feed item journaled through the pipeline.
type Item struct {
	ID            int64
	Title         string
	AnidbAid      int
	AnidbEid      int
	TorrentURL    string
	TotalSize     int64
	SeriesID      int
	EpisodeNumber int
	SeriesTitle   string
	ThumbnailURL  string
	Status        Status
	InfoHash      string
	FilePath      string
	VideoID       int
	VideoUUID     string
	ShortUUID     string
	SessionID     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EpisodeKey returns the resolved key, zero when unresolved.
func (i Item) EpisodeKey() catalog.EpisodeKey {
	return catalog.EpisodeKey{SeriesID: i.SeriesID, EpisodeNumber: i.EpisodeNumber}
}

// SetFailed marks the item failed with the given message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
}

// Session aggregates one monitoring pass over the feed.
type Session struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
}
