// Package queue persists pipeline items in SQLite and journals their state
// transitions.
//
// The journal is operational memory, not the source of truth: the metadata
// API decides whether an episode exists. Items capture the feed identity,
// the resolved episode key, and the handles accumulated along the pipeline
// (info hash, local file, platform video). Schema changes bump the version
// in schema.go; the database is cleared to adopt a new schema.
package queue
