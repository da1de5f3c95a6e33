// Package monitor runs the continuous ingestion loop: fetch the feed on an
// interval, prepare a batch, and walk each surviving item through the
// pipeline sequentially. A file lock enforces a single instance per
// installation.
package monitor
