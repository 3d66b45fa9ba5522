package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/nfe-ingest/internal/application/ingestion"
)

// ReportProvider exposes the most recent run report. *ingestion.Service
// satisfies it.
type ReportProvider interface {
	LastReport() *ingestion.RunReport
}

// StatusHandler serves /status.
type StatusHandler struct {
	provider ReportProvider
}

func NewStatusHandler(provider ReportProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// Status returns the last RunReport, or 404 before the first run completes.
func (h *StatusHandler) Status(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no run recorded"})
		return
	}
	report := h.provider.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no run recorded"})
		return
	}
	c.JSON(http.StatusOK, report)
}
