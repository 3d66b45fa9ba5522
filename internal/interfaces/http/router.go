// Package http serves the ops endpoints of an ingestion process: probes,
// Prometheus metrics and the last run report.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/nfe-ingest/internal/interfaces/http/handlers"
	"github.com/turtacn/nfe-ingest/internal/interfaces/http/middleware"
)

// RouterConfig aggregates handler dependencies.
type RouterConfig struct {
	HealthHandler *handlers.HealthHandler
	StatusHandler *handlers.StatusHandler

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the gin engine. Nil handlers leave their routes
// unregistered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.StatusHandler != nil {
		r.GET("/status", cfg.StatusHandler.Status)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	return r
}
