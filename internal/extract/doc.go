// Package extract demuxes per-track artifacts from a downloaded media file.
//
// Subtitles are stream-copied to .ass with ffmpeg, falling back to
// mkvextract when the copy fails. Audio tracks are re-encoded to MP3.
// Output names are derived from the published video's short UUID plus a
// language suffix; the platform's default audio track (Japanese) takes the
// bare, suffix-free name.
package extract
