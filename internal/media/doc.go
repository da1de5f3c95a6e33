// Package media unifies the two external probers (mkvmerge and ffprobe)
// behind a single track schema the extractor consumes.
//
// The Matroska-native prober is attempted first; on failure the general
// container prober takes over. Track identifiers are prober-specific and are
// passed back to the extractor unchanged.
package media
