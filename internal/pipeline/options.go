package pipeline

import (
	"time"

	"anitorrent/internal/config"
)

// Options carries the per-item knobs. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// CustomName overrides the derived video name; AppendTimestamp adds the
	// current time to it.
	CustomName      string
	AppendTimestamp bool

	ChannelID int
	Privacy   int
	Password  string

	// MaxWait bounds the transcoding wait. Zero means one poll.
	MaxWait time.Duration
	// WriteMetadataOnTimeout permits the metadata write when the wait timed
	// out instead of succeeding.
	WriteMetadataOnTimeout bool

	KeepMaster  bool
	KeepSeeding bool

	// SeriesIDOverride substitutes the resolved series id when positive.
	SeriesIDOverride int

	// AudioTrackIndex and SubtitleTrackIndex restrict extraction to a single
	// track of that kind. Negative means all tracks.
	AudioTrackIndex    int
	SubtitleTrackIndex int

	IgnoredAudio     []int
	IgnoredSubtitles []int

	// LatinoAudioIndex and LatinoSubtitleIndex nominate the Latino track
	// explicitly; other Spanish tracks of the kind are demoted. Negative
	// keeps the probe's classification.
	LatinoAudioIndex    int
	LatinoSubtitleIndex int

	// UseEpisodeTitle includes the episode number in the localized titles
	// written to the metadata API.
	UseEpisodeTitle bool
}

// DefaultOptions derives the per-item defaults from configuration.
func DefaultOptions(cfg *config.Config) Options {
	return Options{
		ChannelID:              cfg.Platform.ChannelID,
		Privacy:                cfg.Platform.Privacy,
		MaxWait:                time.Duration(cfg.Platform.WaitReadyMinutes) * time.Minute,
		WriteMetadataOnTimeout: cfg.Workflow.WriteMetadataOnTimeout,
		KeepMaster:             cfg.Workflow.KeepMaster,
		KeepSeeding:            cfg.Torrent.SeedAfterDownload,
		AudioTrackIndex:        -1,
		SubtitleTrackIndex:     -1,
		LatinoAudioIndex:       -1,
		LatinoSubtitleIndex:    -1,
	}
}
