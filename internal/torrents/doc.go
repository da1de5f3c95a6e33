// Package torrents wraps the embedded BitTorrent client behind the
// pipeline's download contract.
//
// Responsibilities beyond plain downloading: a bounded FIFO seeding fleet
// with eviction callbacks, a free-space guard before each download, buffer
// exhaustion recovery by rebuilding the client with stricter limits, and a
// periodic sweep of completed or stalled torrents.
package torrents
