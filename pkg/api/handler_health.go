package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health and /api/v1/health (spec §4.9
// "aggregate worker pool health").
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{Status: "ok"}
	if s.workerPool != nil {
		resp.WorkerPool = s.workerPool.Health(c.Request().Context())
	}
	return c.JSON(http.StatusOK, resp)
}
