package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"anitorrent/internal/language"
	"anitorrent/internal/media"
)

func sampleReport() media.Report {
	return media.Report{
		Audio: []media.Track{
			{Kind: media.KindAudio, Index: 0, DemuxID: 1, Language: "jpn"},
			{Kind: media.KindAudio, Index: 1, DemuxID: 2, Language: "spa", Variant: language.VariantLatino},
		},
		Subtitle: []media.Track{
			{Kind: media.KindSubtitle, Index: 0, DemuxID: 3, Language: "spa", Variant: language.VariantLatino},
			{Kind: media.KindSubtitle, Index: 1, DemuxID: 4, Language: "eng"},
		},
	}
}

func outputNames(jobs []Job) []string {
	names := make([]string, len(jobs))
	for i, job := range jobs {
		names[i] = job.OutputName
	}
	return names
}

func TestPlanNaming(t *testing.T) {
	jobs := Plan("tgjYS5VH2vJ", sampleReport(), DefaultPlanOptions())
	want := []string{
		"tgjYS5VH2vJ.mp3",
		"tgjYS5VH2vJ_lat.mp3",
		"tgjYS5VH2vJ_lat.ass",
		"tgjYS5VH2vJ_en.ass",
	}
	got := outputNames(jobs)
	if len(got) != len(want) {
		t.Fatalf("expected %d jobs, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("job %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPlanSkipsIgnoredIndices(t *testing.T) {
	opts := DefaultPlanOptions()
	opts.IgnoredAudio = []int{1}
	opts.IgnoredSubtitles = []int{1}
	jobs := Plan("abc", sampleReport(), opts)
	got := outputNames(jobs)
	if len(got) != 2 || got[0] != "abc.mp3" || got[1] != "abc_lat.ass" {
		t.Fatalf("unexpected jobs %v", got)
	}
}

func TestPlanNominatedLatinoDemotesOtherSpanish(t *testing.T) {
	report := media.Report{
		Subtitle: []media.Track{
			{Kind: media.KindSubtitle, Index: 0, DemuxID: 3, Language: "spa", Variant: language.VariantLatino},
			{Kind: media.KindSubtitle, Index: 1, DemuxID: 4, Language: "spa", Variant: language.VariantLatino},
		},
	}
	opts := DefaultPlanOptions()
	opts.LatinoSubtitleIndex = 1
	got := outputNames(Plan("abc", report, opts))
	if got[0] != "abc_spa.ass" || got[1] != "abc_lat.ass" {
		t.Fatalf("nomination must demote the other Spanish track, got %v", got)
	}
}

type call struct {
	name string
	args []string
}

func recordingRunner(calls *[]call, fail func(call) bool) CommandRunner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		c := call{name: name, args: args}
		*calls = append(*calls, c)
		if fail != nil && fail(c) {
			return []byte("tool exploded"), errors.New("exit status 1")
		}
		return nil, nil
	}
}

func TestSubtitleFallsBackToMkvextract(t *testing.T) {
	var calls []call
	extractor := New(Tools{FFmpeg: "ffmpeg", Mkvextract: "mkvextract"}, 192, nil)
	extractor.SetRunner(recordingRunner(&calls, func(c call) bool { return c.name == "ffmpeg" }))

	track := media.Track{Kind: media.KindSubtitle, Index: 0, DemuxID: 3, Language: "spa"}
	if err := extractor.Subtitle(context.Background(), "in.mkv", track, "out.ass"); err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected ffmpeg then mkvextract, got %v", calls)
	}
	if calls[1].name != "mkvextract" {
		t.Fatalf("fallback tool should be mkvextract, got %q", calls[1].name)
	}
	if calls[1].args[2] != "3:out.ass" {
		t.Fatalf("mkvextract must address the demuxer track id, got %v", calls[1].args)
	}
}

func TestAudioEncodesWithConfiguredBitrate(t *testing.T) {
	var calls []call
	extractor := New(Tools{FFmpeg: "ffmpeg"}, 128, nil)
	extractor.SetRunner(recordingRunner(&calls, nil))

	track := media.Track{Kind: media.KindAudio, Index: 1, DemuxID: 2, Language: "spa"}
	if err := extractor.Audio(context.Background(), "in.mkv", track, "out.mp3"); err != nil {
		t.Fatalf("audio: %v", err)
	}
	joined := strings.Join(calls[0].args, " ")
	if !strings.Contains(joined, "-map 0:a:1") {
		t.Fatalf("expected audio-relative map, got %q", joined)
	}
	if !strings.Contains(joined, "-b:a 128k") {
		t.Fatalf("expected configured bitrate, got %q", joined)
	}
	if !strings.Contains(joined, "libmp3lame") {
		t.Fatalf("expected mp3 encoder, got %q", joined)
	}
}

func TestRunCollectsPerTrackFailures(t *testing.T) {
	var calls []call
	extractor := New(Tools{FFmpeg: "ffmpeg"}, 192, nil)
	extractor.SetRunner(recordingRunner(&calls, func(c call) bool {
		return strings.Contains(strings.Join(c.args, " "), "0:a:1")
	}))

	jobs := Plan("abc", sampleReport(), DefaultPlanOptions())
	results := extractor.Run(context.Background(), "in.mkv", jobs, t.TempDir())
	if len(results) != len(jobs) {
		t.Fatalf("every job must produce a result, got %d of %d", len(results), len(jobs))
	}
	var failed int
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed track, got %d", failed)
	}
}
