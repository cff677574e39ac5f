package server

import (
	"fmt"
	"net/http"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/metrics"

	"github.com/gin-gonic/gin"
)

// healthCheck answers 200 when every provider is up and 503 otherwise.
func (s *Server) healthCheck(c *gin.Context) {
	report := s.health.CheckAll(c.Request.Context())
	status := http.StatusOK
	if !report.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, core.APIResponse{Success: report.IsHealthy(), Data: report})
}

func (s *Server) getStatsData(c *gin.Context) {
	stats := s.metrics.GetRequestStats()
	periodStats := metrics.GetPeriodStats(stats.RequestHistory, 1, 24, 24*7)

	respondOK(c, gin.H{
		"currentTime":   time.Now().Format(core.TimeFormatDateTime),
		"currentQPS":    fmt.Sprintf("%.3f", s.metrics.GetQPS()),
		"totalRequests": stats.TotalRequests,
		"successful":    stats.SuccessfulRequests,
		"failed":        stats.FailedRequests,
		"totalRecords":  len(stats.RequestHistory),
		"stats1h":       periodStats[1],
		"stats24h":      periodStats[24],
		"stats7d":       periodStats[24*7],
		"byProvider":    metrics.ProviderBreakdown(stats.RequestHistory),
		"byKind":        metrics.KindBreakdown(stats.RequestHistory),
		"cachedModels":  s.registry.Len(),
	})
}
