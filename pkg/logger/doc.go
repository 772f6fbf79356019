// Package logger provides slog logger factories: a JSON stdout logger, a
// no-op logger for defaults, and a Sentry fan-out variant that mirrors
// warnings and errors to Sentry while keeping stdout as the primary sink.
package logger
