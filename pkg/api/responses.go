package api

import (
	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// JobDetailResponse is returned by GET /api/v1/jobs/:id: the job (with its
// phase pipeline already populated by the store) plus its recent event
// history (SPEC_FULL §4.9 "job + phases + recent events").
type JobDetailResponse struct {
	*models.Job
	Events []models.SessionEvent `json:"events"`
}

// ListJobsResponse is returned by GET /api/v1/jobs.
type ListJobsResponse struct {
	Jobs   []models.Job `json:"jobs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ActionResponse is returned by the job lifecycle action endpoints
// (pause/resume/cancel/retry).
type ActionResponse struct {
	JobID   int64  `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BulkDeleteResponse is returned by DELETE /api/v1/jobs.
type BulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	WorkerPool any    `json:"worker_pool,omitempty"`
}
