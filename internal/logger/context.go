package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerKey is the context key for request-scoped loggers.
type loggerKey struct{}

// ContextWithLogger returns a child context carrying log.
func ContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored in ctx. Callers never get nil: a
// context without a logger yields zap.NewNop().
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}
