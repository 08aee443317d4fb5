package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/cardigan/pkg/metrics"
)

// metricsHandler handles GET /api/v1/metrics: Prometheus exposition format
// (spec §4.9, SPEC_FULL §4.9 "queue depth, per-status job gauges, per-tier
// call counters, and per-job cost histograms").
func (s *Server) metricsHandler(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
