// Package logging configures structured slog logging for amandrive.
//
// Logs are JSON (or text) lines written to stderr and, when a file path is
// configured, to a size-rotated log file under the data directory.
package logging
