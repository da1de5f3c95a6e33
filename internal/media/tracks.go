package media

// TrackKind distinguishes the logical stream types the pipeline handles.
type TrackKind string

const (
	KindAudio    TrackKind = "audio"
	KindSubtitle TrackKind = "subtitle"
)

// Prober names the tool a track report came from. The extractor uses it to
// interpret DemuxID.
type Prober string

const (
	ProberMkvmerge Prober = "mkvmerge"
	ProberFFprobe  Prober = "ffprobe"
)

// Track is one logical stream in a media file.
type Track struct {
	Kind       TrackKind
	Index      int    // dense, 0-based within its kind
	DemuxID    int    // prober-specific; mkvextract track id or ffmpeg stream index
	Language   string // ISO 639-2/3, "und" when unknown
	Variant    string // language sub-classification, e.g. "latino"
	Codec      string
	Title      string
	Channels   int
	SampleRate int
	Default    bool
	Forced     bool
}

// Report is the unified probe result.
type Report struct {
	Source          Prober
	Audio           []Track
	Subtitle        []Track
	DurationSeconds float64
}

// Tools names the prober binaries.
type Tools struct {
	Mkvmerge string
	FFprobe  string
}
