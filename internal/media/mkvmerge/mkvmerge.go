package mkvmerge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result represents the parsed output of an mkvmerge identification.
type Result struct {
	FileName  string    `json:"file_name"`
	Container Container `json:"container"`
	Tracks    []Track   `json:"tracks"`
	raw       []byte
}

// Container carries container-level properties.
type Container struct {
	Recognized bool                `json:"recognized"`
	Supported  bool                `json:"supported"`
	Type       string              `json:"type"`
	Properties ContainerProperties `json:"properties"`
}

// ContainerProperties holds the subset of container properties the pipeline
// reads.
type ContainerProperties struct {
	Duration int64 `json:"duration"` // nanoseconds
}

// Track describes one Matroska track.
type Track struct {
	ID         int             `json:"id"`
	Type       string          `json:"type"`
	Codec      string          `json:"codec"`
	Properties TrackProperties `json:"properties"`
}

// TrackProperties holds the per-track properties mkvmerge reports.
type TrackProperties struct {
	Language        string `json:"language"`
	LanguageIETF    string `json:"language_ietf"`
	TrackName       string `json:"track_name"`
	CodecID         string `json:"codec_id"`
	AudioChannels   int    `json:"audio_channels"`
	AudioSampleRate int    `json:"audio_sampling_frequency"`
	DefaultTrack    bool   `json:"default_track"`
	ForcedTrack     bool   `json:"forced_track"`
}

// Identify executes "mkvmerge -J" against the provided path and decodes the
// JSON response.
func Identify(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "mkvmerge"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("mkvmerge identify: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-J", path)
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("mkvmerge identify: %w", err)
	}

	return Parse(output)
}

// Parse decodes raw mkvmerge identification JSON.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("mkvmerge parse: %w", err)
	}
	if !result.Container.Recognized {
		return Result{}, errors.New("mkvmerge parse: container not recognized")
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw identification payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// TracksOfType returns tracks matching the given type in track order.
func (r Result) TracksOfType(trackType string) []Track {
	tracks := make([]Track, 0, len(r.Tracks))
	for _, track := range r.Tracks {
		if strings.EqualFold(track.Type, trackType) {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// Language returns the most specific language code available for a track.
func (t Track) Language() string {
	if lang := strings.TrimSpace(t.Properties.LanguageIETF); lang != "" && lang != "und" {
		return lang
	}
	return strings.TrimSpace(t.Properties.Language)
}

// DurationSeconds returns the container duration in seconds, or 0 when
// unavailable.
func (r Result) DurationSeconds() float64 {
	if r.Container.Properties.Duration <= 0 {
		return 0
	}
	return float64(r.Container.Properties.Duration) / 1e9
}
