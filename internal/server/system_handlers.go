package server

import (
	"context"
	"net/http"
	"time"

	"allowance/internal/api"
	"allowance/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// Health godoc
// @Summary      Health check
// @Description  503 when the database is unreachable. A down queue only degrades the status.
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Failure      503 {object} api.HealthResponse
// @Router       /health [get]
func Health(dbCheck, queueCheck func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		resp := api.HealthResponse{Status: "ok", Database: "ok"}
		status := http.StatusOK

		if err := dbCheck(ctx); err != nil {
			logger.WithError(err).Error("health: database unreachable")
			resp.Status = "unavailable"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}

		if queueCheck != nil {
			resp.Queue = "ok"
			if err := queueCheck(ctx); err != nil {
				logger.Warn("health: queue unreachable", "error", err.Error())
				resp.Queue = "down"
				if status == http.StatusOK {
					resp.Status = "degraded"
				}
			}
		}

		c.JSON(status, resp)
	}
}

// @Summary      Prometheus metrics
// @Description  Exposes Prometheus metrics in text format
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
