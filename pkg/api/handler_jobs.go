package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/cardigan/pkg/jobsvc"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

const defaultEventLimit = 50

// submitJobHandler handles POST /api/v1/jobs.
func (s *Server) submitJobHandler(c *echo.Context) error {
	var req SubmitJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	job, err := s.jobs.Submit(c.Request().Context(), jobsvc.SubmitInput{
		TranscriptFile: req.TranscriptFile,
		ProjectName:    req.ProjectName,
		Priority:       req.Priority,
		Force:          req.Force,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, job)
}

// listJobsHandler handles GET /api/v1/jobs.
func (s *Server) listJobsHandler(c *echo.Context) error {
	f := store.ListJobsFilter{
		Status: models.JobStatus(c.QueryParam("status")),
		Query:  c.QueryParam("q"),
		SortBy: c.QueryParam("sort"),
		Limit:  100,
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	jobs, err := s.store.ListJobsFiltered(c.Request().Context(), f)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ListJobsResponse{Jobs: jobs, Limit: f.Limit, Offset: f.Offset})
}

// getJobHandler handles GET /api/v1/jobs/:id.
func (s *Server) getJobHandler(c *echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}

	job, err := s.store.GetJob(c.Request().Context(), id, false)
	if err != nil {
		return mapServiceError(err)
	}
	evts, err := s.store.ListEventsForJob(c.Request().Context(), id, defaultEventLimit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &JobDetailResponse{Job: job, Events: evts})
}

// patchJobHandler handles PATCH /api/v1/jobs/:id (priority update).
func (s *Server) patchJobHandler(c *echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	var req PatchJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Priority == nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "priority is required")
	}
	if err := s.store.UpdateJobPriority(c.Request().Context(), id, *req.Priority); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ActionResponse{JobID: id, Message: "priority updated"})
}

// pauseJobHandler handles POST /api/v1/jobs/:id/pause (spec §7
// "pending|in_progress → paused").
func (s *Server) pauseJobHandler(c *echo.Context) error {
	return s.transitionJob(c, models.JobStatusPaused, "paused")
}

// resumeJobHandler handles POST /api/v1/jobs/:id/resume (spec §7
// "paused → pending").
func (s *Server) resumeJobHandler(c *echo.Context) error {
	return s.transitionJob(c, models.JobStatusPending, "resumed")
}

// cancelJobHandler handles POST /api/v1/jobs/:id/cancel. A pending or
// paused job is cancelled directly; an in_progress job is cancelled
// cooperatively via the worker pool's in-memory signal, and the worker
// itself performs the status transition once its current LLM call
// returns (spec §4.5 "Cancellation semantics").
func (s *Server) cancelJobHandler(c *echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	job, err := s.store.GetJob(ctx, id, false)
	if err != nil {
		return mapServiceError(err)
	}

	switch job.Status {
	case models.JobStatusPending, models.JobStatusPaused:
		if err := s.store.UpdateJobStatus(ctx, id, models.JobStatusCancelled); err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, &ActionResponse{JobID: id, Status: string(models.JobStatusCancelled), Message: "job cancelled"})
	case models.JobStatusInProgress, models.JobStatusInvestigating:
		if s.workerPool == nil || !s.workerPool.CancelJob(id) {
			return mapServiceError(ErrInvalidTransition)
		}
		return c.JSON(http.StatusOK, &ActionResponse{JobID: id, Status: string(job.Status), Message: "cancellation requested"})
	default:
		return mapServiceError(ErrInvalidTransition)
	}
}

// retryJobHandler handles POST /api/v1/jobs/:id/retry (spec §7
// "failed → pending, reset phases").
func (s *Server) retryJobHandler(c *echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	if err := s.store.RetryJob(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ActionResponse{JobID: id, Status: string(models.JobStatusPending), Message: "job queued for retry"})
}

// bulkDeleteJobsHandler handles DELETE /api/v1/jobs?status=failed,cancelled
// (spec §4.1 "bulk_delete", restricted to {failed, cancelled}).
func (s *Server) bulkDeleteJobsHandler(c *echo.Context) error {
	raw := c.QueryParam("status")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status query parameter is required")
	}

	var statuses []models.JobStatus
	for _, part := range splitCSV(raw) {
		st := models.JobStatus(part)
		if st != models.JobStatusFailed && st != models.JobStatusCancelled {
			return echo.NewHTTPError(http.StatusBadRequest, "status must be a subset of failed,cancelled")
		}
		statuses = append(statuses, st)
	}

	n, err := s.store.SoftDeleteJobsByStatus(c.Request().Context(), statuses)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &BulkDeleteResponse{Deleted: n})
}

// transitionJob implements pause/resume, both a direct status write with
// no in-process coordination required (spec §7's transition graph already
// restricts which source statuses each target accepts; the store's
// UpdateJobStatus does not itself validate transitions, so handlers check
// the adjacency here before writing).
func (s *Server) transitionJob(c *echo.Context, to models.JobStatus, verb string) error {
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	job, err := s.store.GetJob(ctx, id, false)
	if err != nil {
		return mapServiceError(err)
	}
	if !models.CanTransition(job.Status, to) {
		return mapServiceError(ErrInvalidTransition)
	}
	if err := s.store.UpdateJobStatus(ctx, id, to); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ActionResponse{JobID: id, Status: string(to), Message: "job " + verb})
}

func jobIDParam(c *echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}
	return id, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
