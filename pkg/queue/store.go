package queue

import (
	"context"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// Store is the subset of *store.Store the worker pool and reaper depend
// on (spec §4.1's claim/heartbeat/reset contracts).
type Store interface {
	ClaimNextPendingJob(ctx context.Context, workerID string) (*models.Job, error)
	UpdateHeartbeat(ctx context.Context, jobID int64) error
	GetStaleJobs(ctx context.Context, threshold time.Duration) ([]models.Job, error)
	ResetStuckJob(ctx context.Context, jobID int64, requeue bool) error
	GetJob(ctx context.Context, id int64, includeDeleted bool) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status models.JobStatus) error
	CompleteJob(ctx context.Context, jobID int64, actualCost float64) error
	FailJob(ctx context.Context, jobID int64, errMsg string) error
	AdvancePhaseIndex(ctx context.Context, jobID int64, index int) error
	SkipPhase(ctx context.Context, jobID int64, phaseIndex int) error
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}
