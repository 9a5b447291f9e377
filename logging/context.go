package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextKeyLogger    contextKey = "logger"
	contextKeyTraceID   contextKey = "trace_id"
	contextKeySourceKey contextKey = "source_key"
)

// ContextWithTraceID returns a new context with trace ID
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID, traceID)
}

// TraceIDFromContext returns trace ID from context
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyTraceID).(string); ok {
		return v
	}
	return ""
}

// ContextWithSourceKey returns a new context carrying the book source URL
func ContextWithSourceKey(ctx context.Context, sourceKey string) context.Context {
	return context.WithValue(ctx, contextKeySourceKey, sourceKey)
}

// SourceKeyFromContext returns the book source URL from context
func SourceKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeySourceKey).(string); ok {
		return v
	}
	return ""
}

// NewTrace starts a traced operation for one book source: it assigns a fresh
// trace ID unless one is present and stores an enriched logger in the context.
func NewTrace(ctx context.Context, sourceKey string) context.Context {
	if TraceIDFromContext(ctx) == "" {
		ctx = ContextWithTraceID(ctx, uuid.NewString())
	}
	if sourceKey != "" {
		ctx = ContextWithSourceKey(ctx, sourceKey)
	}
	return WithContext(ctx, EnrichLogger(ctx, GetLogger()))
}

// EnrichLogger enriches logger with context values
func EnrichLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	if sourceKey := SourceKeyFromContext(ctx); sourceKey != "" {
		logger = logger.With("source_key", sourceKey)
	}
	return logger
}
