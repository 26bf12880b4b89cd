// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries request-scoped loggers through contexts so
// that HTTP handlers and WebSocket sessions can tag every line with their identifiers.
package logger
