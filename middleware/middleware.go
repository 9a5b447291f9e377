package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/dotecxy/legado2-sub001/monitoring"
)

// Setup installs recovery, request IDs, metrics, rate limiting and access
// logging in that order
func Setup(router *gin.Engine, cfg config.ServerConfig, logger *slog.Logger) {
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware(nil))
	router.Use(monitoring.GinMetricsMiddleware("/health", "/ready"))
	router.Use(NewRateLimitMiddleware(cfg).Handler())
	router.Use(NewLoggerMiddleware(logger, "/health", "/ready").Handler())
}
