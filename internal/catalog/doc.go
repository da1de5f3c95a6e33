// Package catalog resolves feed items to canonical episode identities via
// the cross-catalog mapping service.
//
// The mapping service translates the feed's catalog identifiers into the
// metadata API's series identifier plus an episode number. A missing mapping
// (HTTP 404) is absence, not failure.
package catalog
