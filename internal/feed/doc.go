// Package feed fetches and models the torrent RSS feed the daemon ingests.
package feed
