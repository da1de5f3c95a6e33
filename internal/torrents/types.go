package torrents

import "time"

// FileSelect chooses which file of a multi-file torrent becomes the media
// file. A single-file torrent returns its file either way.
type FileSelect string

const (
	SelectLargest FileSelect = "largest"
	SelectFirst   FileSelect = "first"
)

// DownloadOptions configures a single download.
type DownloadOptions struct {
	Select      FileSelect
	Timeout     time.Duration
	KeepSeeding bool
	// ExpectedBytes is the feed's advertised size, used for the space guard
	// before torrent metadata is available. Zero skips the early check.
	ExpectedBytes int64
}

// MediaFile is a completed download handed to the rest of the pipeline.
type MediaFile struct {
	Path        string
	SizeBytes   int64
	InfoHash    string
	TorrentName string
}

// SlotStatus is a snapshot of one seeding slot.
type SlotStatus struct {
	InfoHash        string
	Path            string
	AddedAt         time.Time
	UploadedBytes   int64
	DownloadedBytes int64
	ActivePeers     int
}

// EvictFunc observes a slot leaving the seeding fleet.
type EvictFunc func(SlotStatus)
