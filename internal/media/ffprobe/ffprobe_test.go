package ffprobe

import "testing"

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "sample_rate": "48000",
     "tags": {"language": "jpn", "title": "Original"}},
    {"index": 2, "codec_name": "ass", "codec_type": "subtitle",
     "tags": {"language": "spa", "title": "Latin"}, "disposition": {"default": 1, "forced": 0}}
  ],
  "format": {"filename": "episode.mkv", "nb_streams": 3, "duration": "1422.50", "size": "734003200"}
}`

func TestParseStreamsAndFormat(t *testing.T) {
	result, err := Parse([]byte(sampleOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(result.StreamsOfType("audio")) != 1 {
		t.Fatalf("expected one audio stream")
	}
	subs := result.StreamsOfType("subtitle")
	if len(subs) != 1 {
		t.Fatalf("expected one subtitle stream")
	}
	if subs[0].Title() != "Latin" {
		t.Fatalf("unexpected title %q", subs[0].Title())
	}
	if subs[0].Disposition.Default != 1 {
		t.Fatal("expected default disposition")
	}
	if got := result.DurationSeconds(); got != 1422.5 {
		t.Fatalf("unexpected duration %v", got)
	}
	if got := result.SizeBytes(); got != 734003200 {
		t.Fatalf("unexpected size %v", got)
	}
	audio := result.StreamsOfType("audio")[0]
	if audio.SampleRateHz() != 48000 {
		t.Fatalf("unexpected sample rate %d", audio.SampleRateHz())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
