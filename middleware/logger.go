package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware handles request logging
type LoggerMiddleware struct {
	logger    *slog.Logger
	skipPaths []string
}

// NewLoggerMiddleware creates a new logger middleware
func NewLoggerMiddleware(logger *slog.Logger, skipPaths ...string) *LoggerMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerMiddleware{
		logger:    logger,
		skipPaths: skipPaths,
	}
}

// Handler returns the middleware handler function
func (l *LoggerMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range l.skipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		fields := []any{
			"request_id", GetRequestID(c),
			"trace_id", GetTraceID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		statusCode := c.Writer.Status()
		if statusCode >= 500 {
			l.logger.Error("HTTP request completed with server error", fields...)
		} else if statusCode >= 400 {
			l.logger.Warn("HTTP request completed with client error", fields...)
		} else {
			l.logger.Info("HTTP request completed", fields...)
		}
	}
}
