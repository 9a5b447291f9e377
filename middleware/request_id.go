package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dotecxy/legado2-sub001/logging"
)

const (
	// RequestIDKey is the key used to store request ID in context
	RequestIDKey = "request_id"

	// TraceIDKey is the key used to store trace ID in context
	TraceIDKey = "trace_id"

	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader is the header name for trace ID
	TraceIDHeader = "X-Trace-ID"
)

// RequestIDConfig holds configuration for request ID middleware
type RequestIDConfig struct {
	// Generator is the function to generate request and trace IDs
	Generator func() string

	// SkipPaths are paths that should not generate request ID
	SkipPaths []string
}

// DefaultRequestIDConfig returns default configuration
func DefaultRequestIDConfig() *RequestIDConfig {
	return &RequestIDConfig{
		Generator: uuid.NewString,
		SkipPaths: []string{"/health", "/ready"},
	}
}

// RequestIDMiddleware assigns request and trace IDs. The trace ID is put in
// the request context so book operations log under it.
func RequestIDMiddleware(config *RequestIDConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultRequestIDConfig()
	}

	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = config.Generator()
		}
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = config.Generator()
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)
		c.Header(RequestIDHeader, requestID)
		c.Header(TraceIDHeader, traceID)

		ctx := logging.ContextWithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID gets request ID from context
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// GetTraceID gets trace ID from context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
