// Package logger provides structured logging for the harness.
//
// It utilizes Go's standard library log/slog package: JSON output with a
// configurable level, a logger carried in context.Context, and helpers that
// route log output into the running test's log.
package logger
