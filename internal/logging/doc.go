// Package logging builds the slog loggers used across cleave and provides
// the attribute helpers and context plumbing that keep structured fields
// consistent between components.
package logging
