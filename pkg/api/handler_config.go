package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/cardigan/pkg/config"
)

// getRoutingConfigHandler handles GET /api/v1/config/routing.
func (s *Server) getRoutingConfigHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot.Current().Routing)
}

// putRoutingConfigHandler handles PUT /api/v1/config/routing: validates
// the submitted document against the same schema the router consumes,
// then swaps it into the live config snapshot (spec §4.9 "PUT /config/
// routing"). Workers pick up the change on their next poll since each
// holds no cached copy beyond a single snapshot read per iteration.
func (s *Server) putRoutingConfigHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	routing, err := config.LoadRoutingDocument(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	current := *s.snapshot.Current()
	current.Routing = *routing
	s.snapshot.Replace(&current)
	return c.JSON(http.StatusOK, routing)
}

// getWorkerConfigHandler handles GET /api/v1/config/worker.
func (s *Server) getWorkerConfigHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot.Current().Worker)
}

// putWorkerConfigHandler handles PUT /api/v1/config/worker.
func (s *Server) putWorkerConfigHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	worker, err := config.LoadWorkerDocument(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	current := *s.snapshot.Current()
	current.Worker = *worker
	s.snapshot.Replace(&current)
	return c.JSON(http.StatusOK, worker)
}
