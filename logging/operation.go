package logging

import (
	"context"
	"time"
)

// OperationLogger tracks one book operation from start to finish
type OperationLogger struct {
	ctx       context.Context
	operation string
	startTime time.Time
	fields    []any
}

// StartOperation starts logging an operation
func StartOperation(ctx context.Context, operation string) *OperationLogger {
	return &OperationLogger{
		ctx:       ctx,
		operation: operation,
		startTime: time.Now(),
	}
}

// WithField adds a field to the operation log
func (ol *OperationLogger) WithField(key string, value any) *OperationLogger {
	ol.fields = append(ol.fields, key, value)
	return ol
}

// Elapsed returns the time since the operation started
func (ol *OperationLogger) Elapsed() time.Duration {
	return time.Since(ol.startTime)
}

// Success logs the operation as successful
func (ol *OperationLogger) Success(message ...string) {
	msg := "operation completed"
	if len(message) > 0 {
		msg = message[0]
	}
	args := append([]any{"operation", ol.operation, "duration_ms", ol.Elapsed().Milliseconds(), "status", "success"}, ol.fields...)
	L(ol.ctx).Info(msg, args...)
}

// Failed logs the operation as failed
func (ol *OperationLogger) Failed(err error, message ...string) {
	msg := "operation failed"
	if len(message) > 0 {
		msg = message[0]
	}
	args := append([]any{"operation", ol.operation, "duration_ms", ol.Elapsed().Milliseconds(), "status", "failed", "error", err.Error()}, ol.fields...)
	L(ol.ctx).Error(msg, args...)
}
