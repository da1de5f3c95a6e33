// Package logging builds the slog loggers used across the daemon.
//
// It provides typed attribute helpers, the shared field-name constants that
// keep log output greppable, a console handler for interactive sessions, and
// a JSON handler for log files and non-TTY output.
package logging
