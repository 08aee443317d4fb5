// Package api provides Cardigan's control API (spec §4.9): queue
// submission, job inspection and lifecycle actions, config read/write, and
// streaming events. Grounded on tarsy's pkg/api/server.go — Echo v5,
// routes grouped under /api/v1, a single mapServiceError translating
// service-layer sentinels to HTTP status — generalized from tarsy's
// session/alert surface to Cardigan's job surface.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/jobsvc"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

// Store is the subset of *store.Store the control API depends on,
// narrower than pkg/queue's Store since the API never claims jobs itself.
type Store interface {
	GetJob(ctx context.Context, id int64, includeDeleted bool) (*models.Job, error)
	ListJobsFiltered(ctx context.Context, f store.ListJobsFilter) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status models.JobStatus) error
	UpdateJobPriority(ctx context.Context, jobID int64, priority int) error
	RetryJob(ctx context.Context, jobID int64) error
	SoftDeleteJobsByStatus(ctx context.Context, statuses []models.JobStatus) (int64, error)
	ListEventsForJob(ctx context.Context, jobID int64, limit int) ([]models.SessionEvent, error)
	ListRecentEvents(ctx context.Context, limit int) ([]models.SessionEvent, error)
}

// WorkerPool is the subset of *queue.WorkerPool the control API needs for
// health reporting and in-process cancellation (spec §4.5
// "Cancellation"). Health's return type is left as any so this package
// does not need to import pkg/queue for queue.PoolHealth's single type —
// the Server only ever re-serializes whatever it gets back as JSON.
type WorkerPool interface {
	Health(ctx context.Context) any
	CancelJob(jobID int64) bool
}

// Server is Cardigan's HTTP control API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	store       Store
	jobs        *jobsvc.Service
	workerPool  WorkerPool
	broadcaster *events.Broadcaster
	snapshot    *config.Snapshot
}

// NewServer builds a Server and registers all routes.
func NewServer(store Store, jobs *jobsvc.Service, workerPool WorkerPool, broadcaster *events.Broadcaster, snapshot *config.Snapshot) *Server {
	e := echo.New()
	s := &Server{
		echo:        e,
		store:       store,
		jobs:        jobs,
		workerPool:  workerPool,
		broadcaster: broadcaster,
		snapshot:    snapshot,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthHandler)
	v1.GET("/metrics", s.metricsHandler)

	v1.POST("/jobs", s.submitJobHandler)
	v1.GET("/jobs", s.listJobsHandler)
	v1.DELETE("/jobs", s.bulkDeleteJobsHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.PATCH("/jobs/:id", s.patchJobHandler)
	v1.POST("/jobs/:id/pause", s.pauseJobHandler)
	v1.POST("/jobs/:id/resume", s.resumeJobHandler)
	v1.POST("/jobs/:id/cancel", s.cancelJobHandler)
	v1.POST("/jobs/:id/retry", s.retryJobHandler)

	v1.GET("/config/routing", s.getRoutingConfigHandler)
	v1.PUT("/config/routing", s.putRoutingConfigHandler)
	v1.GET("/config/worker", s.getWorkerConfigHandler)
	v1.PUT("/config/worker", s.putWorkerConfigHandler)

	v1.GET("/events/stream", s.eventsStreamHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// used by tests that want a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
