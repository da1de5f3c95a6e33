// Package metadata talks to the episode metadata API.
//
// The API is the source of truth for which episodes are already published.
// Records are always written with isReady=false; a downstream process flips
// the flag once the platform finishes transcoding.
package metadata
