// Package mkvmerge provides a typed wrapper around "mkvmerge -J"
// identification output, the Matroska-native counterpart to ffprobe.
package mkvmerge
