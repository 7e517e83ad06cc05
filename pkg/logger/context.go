package logger

import (
	"context"
)

type contextKey struct{}

// WithLogger stores l in ctx. Pipeline runs attach a logger carrying the
// run id and video hash so nested packages log with the same fields.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return Get()
}

// Component is shorthand for FromContext(ctx).WithComponent(name).
func Component(ctx context.Context, name string) *Logger {
	return FromContext(ctx).WithComponent(name)
}
