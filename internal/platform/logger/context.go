package logger

import (
	"context"
	"log/slog"
)

// ctxKey is the private context key type for the request-scoped logger.
type ctxKey struct{}

// WithLogger returns a new context carrying the given logger. Handlers
// and the task runner attach a logger enriched with request or job
// attributes so deeper layers log with the same correlation fields.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in the context, or the default
// slog logger when none is present. Never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
