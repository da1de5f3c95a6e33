package extract

import (
	"slices"

	"anitorrent/internal/language"
	"anitorrent/internal/media"
)

// Job is one planned track extraction.
type Job struct {
	Track      media.Track
	OutputName string
}

// PlanOptions carries the per-item overrides.
type PlanOptions struct {
	// IgnoredAudio and IgnoredSubtitles drop tracks by their dense index.
	IgnoredAudio     []int
	IgnoredSubtitles []int
	// LatinoAudioIndex and LatinoSubtitleIndex nominate a specific track as
	// the Latino one; other Spanish tracks of that kind are demoted to the
	// castilian suffix. Negative means keep the probe's classification.
	LatinoAudioIndex    int
	LatinoSubtitleIndex int
}

// DefaultPlanOptions keeps the probe's variant classification.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{LatinoAudioIndex: -1, LatinoSubtitleIndex: -1}
}

// Plan maps probed tracks onto extraction jobs with their output names.
// Audio becomes `<shortUUID>[_<suffix>].mp3`, subtitles
// `<shortUUID>_<suffix>.ass`. Japanese audio is the platform default track
// and takes the bare name.
func Plan(shortUUID string, report media.Report, opts PlanOptions) []Job {
	jobs := make([]Job, 0, len(report.Audio)+len(report.Subtitle))

	for _, track := range applyNomination(report.Audio, opts.LatinoAudioIndex) {
		if slices.Contains(opts.IgnoredAudio, track.Index) {
			continue
		}
		name := shortUUID
		if language.ToISO3(track.Language) != "jpn" {
			name += "_" + language.Suffix(track.Language, track.Variant)
		}
		jobs = append(jobs, Job{Track: track, OutputName: name + ".mp3"})
	}

	for _, track := range applyNomination(report.Subtitle, opts.LatinoSubtitleIndex) {
		if slices.Contains(opts.IgnoredSubtitles, track.Index) {
			continue
		}
		suffix := language.Suffix(track.Language, track.Variant)
		jobs = append(jobs, Job{Track: track, OutputName: shortUUID + "_" + suffix + ".ass"})
	}

	return jobs
}

// applyNomination rewrites Spanish variants around an explicitly nominated
// Latino track.
func applyNomination(tracks []media.Track, latinoIndex int) []media.Track {
	if latinoIndex < 0 {
		return tracks
	}
	adjusted := make([]media.Track, len(tracks))
	copy(adjusted, tracks)
	for i, track := range adjusted {
		if language.ToISO3(track.Language) != "spa" {
			continue
		}
		if track.Index == latinoIndex {
			adjusted[i].Variant = language.VariantLatino
		} else {
			adjusted[i].Variant = language.VariantCastilian
		}
	}
	return adjusted
}
