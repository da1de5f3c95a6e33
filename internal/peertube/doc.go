// Package peertube is the video platform client.
//
// It handles the OAuth token lifecycle (client credential fetch, password
// grant, refresh with password fallback, persisted token file), URL-based
// imports, and polling a video until platform-side transcoding settles.
package peertube
