package media

import (
	"context"
	"fmt"

	"anitorrent/internal/language"
	"anitorrent/internal/media/ffprobe"
	"anitorrent/internal/media/mkvmerge"
)

// Probe inspects a media file, preferring the Matroska-native prober and
// falling back to the general container prober when it fails.
func Probe(ctx context.Context, tools Tools, path string) (Report, error) {
	native, nativeErr := mkvmerge.Identify(ctx, tools.Mkvmerge, path)
	if nativeErr == nil {
		report := fromMkvmerge(native)
		finalize(&report)
		return report, nil
	}

	general, generalErr := ffprobe.Inspect(ctx, tools.FFprobe, path)
	if generalErr != nil {
		return Report{}, fmt.Errorf("probe %s: mkvmerge: %v; ffprobe: %w", path, nativeErr, generalErr)
	}
	report := fromFFprobe(general)
	finalize(&report)
	return report, nil
}

func fromMkvmerge(result mkvmerge.Result) Report {
	report := Report{Source: ProberMkvmerge, DurationSeconds: result.DurationSeconds()}
	for _, track := range result.TracksOfType("audio") {
		report.Audio = append(report.Audio, Track{
			Kind:       KindAudio,
			DemuxID:    track.ID,
			Language:   language.ToISO3(track.Language()),
			Codec:      track.Codec,
			Title:      track.Properties.TrackName,
			Channels:   track.Properties.AudioChannels,
			SampleRate: track.Properties.AudioSampleRate,
			Default:    track.Properties.DefaultTrack,
			Forced:     track.Properties.ForcedTrack,
		})
	}
	for _, track := range result.TracksOfType("subtitles") {
		report.Subtitle = append(report.Subtitle, Track{
			Kind:     KindSubtitle,
			DemuxID:  track.ID,
			Language: language.ToISO3(track.Language()),
			Codec:    track.Codec,
			Title:    track.Properties.TrackName,
			Default:  track.Properties.DefaultTrack,
			Forced:   track.Properties.ForcedTrack,
		})
	}
	return report
}

func fromFFprobe(result ffprobe.Result) Report {
	report := Report{Source: ProberFFprobe, DurationSeconds: result.DurationSeconds()}
	for _, stream := range result.StreamsOfType("audio") {
		report.Audio = append(report.Audio, Track{
			Kind:       KindAudio,
			DemuxID:    stream.Index,
			Language:   language.ToISO3(language.ExtractFromTags(stream.Tags)),
			Codec:      stream.CodecName,
			Title:      stream.Title(),
			Channels:   stream.Channels,
			SampleRate: stream.SampleRateHz(),
			Default:    stream.Disposition.Default == 1,
			Forced:     stream.Disposition.Forced == 1,
		})
	}
	for _, stream := range result.StreamsOfType("subtitle") {
		report.Subtitle = append(report.Subtitle, Track{
			Kind:     KindSubtitle,
			DemuxID:  stream.Index,
			Language: language.ToISO3(language.ExtractFromTags(stream.Tags)),
			Codec:    stream.CodecName,
			Title:    stream.Title(),
			Default:  stream.Disposition.Default == 1,
			Forced:   stream.Disposition.Forced == 1,
		})
	}
	return report
}

// finalize assigns dense per-kind indexes and Spanish variants. The variant
// heuristic runs per kind: the set of Spanish audio tracks is classified
// independently from the set of Spanish subtitle tracks.
func finalize(report *Report) {
	for i := range report.Audio {
		report.Audio[i].Index = i
	}
	for i := range report.Subtitle {
		report.Subtitle[i].Index = i
	}
	assignSpanishVariants(report.Audio)
	assignSpanishVariants(report.Subtitle)
}

func assignSpanishVariants(tracks []Track) {
	spanish := make([]int, 0, len(tracks))
	titles := make([]string, 0, len(tracks))
	for i, track := range tracks {
		if track.Language == "spa" {
			spanish = append(spanish, i)
			titles = append(titles, track.Title)
		}
	}
	if len(spanish) == 0 {
		return
	}
	variants := language.ClassifySpanish(titles)
	for pos, i := range spanish {
		tracks[i].Variant = variants[pos]
	}
}
