// Package config loads, normalizes, and validates the daemon configuration.
//
// The configuration lives as JSON in the OS per-user config directory
// (for example ~/.config/anitorrent/config.json). Reading this file is the
// only way the daemon learns credentials; nothing on the request path reads
// the environment. The OAuth token cache is persisted next to it.
package config
