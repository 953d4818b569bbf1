// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, and carries request- or task-scoped loggers in a
// context.Context so storage adapters can log with the caller's attributes.
package logger
