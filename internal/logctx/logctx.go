package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithCapture returns a context whose logger writes to both the current logger
// and c. Only code running under the returned context reaches c.
func WithCapture(ctx context.Context, c *Capture) context.Context {
	logger := LoggerFromContext(ctx)

	return WithLogger(ctx, slog.New(fanout(logger.Handler(), c)))
}
