package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// CreateJob inserts a new job in "pending" status along with its initial
// phase pipeline, all inside one transaction (spec §4.1 "create_job").
func (s *Store) CreateJob(ctx context.Context, job *models.Job, phases []models.PhaseName) (*models.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job.Status = models.JobStatusPending
	job.QueuedAt = now()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (worker_id, transcript_file, project_path, project_name, status,
			priority, retry_count, max_retries, recovery_use, queued_at, estimated_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.WorkerID, job.TranscriptFile, job.ProjectPath, job.ProjectName, job.Status,
		job.Priority, job.RetryCount, job.MaxRetries, job.RecoveryUse, job.QueuedAt, job.EstimatedCost)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id

	pipeline := models.NewPipeline(phases)
	for i := range pipeline {
		pipeline[i].JobID = id
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_phases (job_id, phase_index, name, status)
			VALUES (?, ?, ?, ?)`,
			id, pipeline[i].Index, pipeline[i].Name, pipeline[i].Status); err != nil {
			return nil, fmt.Errorf("insert phase %s: %w", pipeline[i].Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	job.Phases = pipeline
	return job, nil
}

// FindActiveJobByTranscript returns the non-terminal job (if any) already
// queued for transcriptFile, for the duplicate-transcript guard callers
// (control API submit, ingest watcher) apply before CreateJob unless the
// caller passed force (spec §4.1 "create_job", §8 "Duplicate guard").
func (s *Store) FindActiveJobByTranscript(ctx context.Context, transcriptFile string) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT * FROM jobs
		WHERE transcript_file = ? AND deleted_at IS NULL
		  AND status NOT IN ('completed', 'cancelled', 'failed')
		ORDER BY queued_at DESC LIMIT 1`, transcriptFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by transcript: %w", err)
	}
	return &job, nil
}

// GetJob loads a job and its phase pipeline by id. Soft-deleted jobs are
// not returned unless includeDeleted is set (used by admin/debug paths).
func (s *Store) GetJob(ctx context.Context, id int64, includeDeleted bool) (*models.Job, error) {
	var job models.Job
	q := `SELECT * FROM jobs WHERE id = ?`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	if err := s.db.GetContext(ctx, &job, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	phases, err := s.ListPhases(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Phases = phases
	return &job, nil
}

// ListJobs returns jobs in descending queued_at order, optionally filtered
// by status, for the control API's GET /jobs (spec §4.9).
func (s *Store) ListJobs(ctx context.Context, status models.JobStatus, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	if status == "" {
		err := s.db.SelectContext(ctx, &jobs, `
			SELECT * FROM jobs WHERE deleted_at IS NULL
			ORDER BY queued_at DESC LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		return jobs, nil
	}
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs WHERE deleted_at IS NULL AND status = ?
		ORDER BY queued_at DESC LIMIT ? OFFSET ?`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListJobsFilter narrows ListJobsFiltered's result set (spec §4.9 "List
// jobs, paginated, filtered by status and filename substring, sorted
// newest/priority").
type ListJobsFilter struct {
	Status models.JobStatus // "" = any
	Query  string           // substring match against transcript_file, "" = any
	SortBy string           // "queued_at" (default) or "priority"
	Limit  int
	Offset int
}

// ListJobsFiltered is ListJobs generalized with a filename substring filter
// and a choice of sort column, backing GET /api/v1/jobs.
func (s *Store) ListJobsFiltered(ctx context.Context, f ListJobsFilter) ([]models.Job, error) {
	order := "queued_at DESC"
	if f.SortBy == "priority" {
		order = "priority DESC, queued_at ASC"
	}

	q := "SELECT * FROM jobs WHERE deleted_at IS NULL"
	var args []any
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Query != "" {
		q += " AND transcript_file LIKE ?"
		args = append(args, "%"+f.Query+"%")
	}
	q += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var jobs []models.Job
	if err := s.db.SelectContext(ctx, &jobs, q, args...); err != nil {
		return nil, fmt.Errorf("list jobs filtered: %w", err)
	}
	return jobs, nil
}

// ClaimNextPendingJob atomically claims the highest-priority, oldest
// pending job for workerID (spec §4.1 "at-most-one-claim", §5; see
// DESIGN.md's Open Question #4). sqlite has no SELECT ... FOR UPDATE SKIP
// LOCKED, so the claim selects the candidate id and then runs an UPDATE
// conditional on status = 'pending', both inside one immediate-mode
// transaction; it is a read followed by a conditional write, not a single
// statement. Returns ErrNoJobAvailable if no pending job exists.
func (s *Store) ClaimNextPendingJob(ctx context.Context, workerID string) (*models.Job, error) {
	// _txlock=immediate (set on the DSN in store.go) makes this BeginTxx
	// issue BEGIN IMMEDIATE, taking the write lock before the SELECT
	// below runs so no other connection can claim the same row first.
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var claimID int64
	err = tx.GetContext(ctx, &claimID, `
		SELECT id FROM jobs
		WHERE status = 'pending' AND deleted_at IS NULL
		ORDER BY priority DESC, queued_at ASC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("select claim candidate: %w", err)
	}

	t := now()
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'in_progress', worker_id = ?, started_at = ?, last_heartbeat = ?
		WHERE id = ? AND status = 'pending'`, workerID, t, t, claimID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another connection claimed this row between our SELECT and
		// UPDATE (shouldn't happen under BEGIN IMMEDIATE, but the
		// conditional WHERE makes it safe either way).
		return nil, ErrNoJobAvailable
	}

	var job models.Job
	if err := tx.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, claimID); err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	phases, err := s.ListPhases(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.Phases = phases
	return &job, nil
}

// UpdateHeartbeat bumps last_heartbeat for a claimed job; the worker's
// heartbeat goroutine calls this on an interval (spec §4.6, §5).
func (s *Store) UpdateHeartbeat(ctx context.Context, jobID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND status = 'in_progress'`, now(), jobID)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStaleJobs returns in_progress jobs whose last_heartbeat is older than
// threshold, for the stale-job reaper (spec §4.7).
func (s *Store) GetStaleJobs(ctx context.Context, threshold time.Duration) ([]models.Job, error) {
	cutoff := now().Add(-threshold)
	var jobs []models.Job
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status = 'in_progress' AND deleted_at IS NULL
		  AND (last_heartbeat IS NULL OR last_heartbeat < ?)`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get stale jobs: %w", err)
	}
	return jobs, nil
}

// ResetStuckJob moves a stale job back to "pending" for re-claim, or to
// "failed" if its retry budget is exhausted (spec §4.7 reaper decision).
func (s *Store) ResetStuckJob(ctx context.Context, jobID int64, requeue bool) error {
	if requeue {
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'pending', worker_id = '', started_at = NULL,
				last_heartbeat = NULL, retry_count = retry_count + 1
			WHERE id = ? AND status = 'in_progress'`, jobID)
		if err != nil {
			return fmt.Errorf("requeue stuck job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error_message = 'orphaned: heartbeat timeout and retry budget exhausted',
			error_timestamp = ?, completed_at = ?
		WHERE id = ? AND status = 'in_progress'`, now(), now(), jobID)
	if err != nil {
		return fmt.Errorf("fail stuck job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus performs a status transition, validated by
// models.CanTransition at the caller. extra fields (completed_at,
// error_message, etc.) are supplied by dedicated helpers below.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID int64, status models.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ? AND deleted_at IS NULL`, status, jobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteJob marks a job completed with its final actual cost (spec §4.1).
func (s *Store) CompleteJob(ctx context.Context, jobID int64, actualCost float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = ?, actual_cost = ?
		WHERE id = ? AND deleted_at IS NULL`, now(), actualCost, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob marks a job failed with an error message (spec §4.1, §7).
func (s *Store) FailJob(ctx context.Context, jobID int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error_message = ?, error_timestamp = ?, completed_at = ?
		WHERE id = ? AND deleted_at IS NULL`, errMsg, now(), now(), jobID)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddActualCost increments a job's running actual_cost (spec §5 "cost
// accounting"), called once per successful LLM call.
func (s *Store) AddActualCost(ctx context.Context, jobID int64, delta float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET actual_cost = actual_cost + ? WHERE id = ?`, delta, jobID)
	if err != nil {
		return fmt.Errorf("add actual cost: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvancePhaseIndex moves a job's current_phase_index forward after a
// phase completes (spec §4.4 step 5).
func (s *Store) AdvancePhaseIndex(ctx context.Context, jobID int64, index int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET current_phase_index = ? WHERE id = ?`, index, jobID)
	if err != nil {
		return fmt.Errorf("advance phase index: %w", err)
	}
	return nil
}

// IncrementRecoveryUse records one recovery-analyzer invocation against a
// job's recovery budget (spec §4.5).
func (s *Store) IncrementRecoveryUse(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET recovery_use = recovery_use + 1 WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("increment recovery use: %w", err)
	}
	return nil
}

// SoftDeleteJobs marks jobs deleted without removing rows, for the
// control API's bulk-delete endpoint (spec §4.9; retention sweep in
// pkg/cleanup later hard-deletes past the TTL).
func (s *Store) SoftDeleteJobs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlxIn(`UPDATE jobs SET deleted_at = ? WHERE id IN (?) AND deleted_at IS NULL`, now(), ids)
	if err != nil {
		return 0, fmt.Errorf("build soft delete query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("soft delete jobs: %w", err)
	}
	return res.RowsAffected()
}

// HardDeleteExpired permanently removes jobs soft-deleted (or completed/
// failed/cancelled and past their TTL) before cutoff, cascading to their
// phases (spec §4.10, the retention sweep).
func (s *Store) HardDeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE (deleted_at IS NOT NULL AND deleted_at < ?)
		   OR (status IN ('completed', 'failed', 'cancelled') AND completed_at IS NOT NULL AND completed_at < ?)`,
		cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("hard delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// SoftDeleteJobsByStatus soft-deletes every non-deleted job whose status is
// in statuses, for the control API's bulk-delete endpoint (spec §4.9
// "Bulk delete restricted to {failed, cancelled}"). The caller is
// responsible for restricting statuses to that set; this method applies
// no restriction of its own so the reaper/janitor callers could reuse it
// for other status sets in the future.
func (s *Store) SoftDeleteJobsByStatus(ctx context.Context, statuses []models.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query, args, err := sqlxIn(`UPDATE jobs SET deleted_at = ? WHERE status IN (?) AND deleted_at IS NULL`, now(), statuses)
	if err != nil {
		return 0, fmt.Errorf("build soft delete by status query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("soft delete jobs by status: %w", err)
	}
	return res.RowsAffected()
}

// UpdateJobPriority changes a non-terminal job's priority (spec §4.9
// "PATCH /jobs/:id — priority update"). Terminal jobs (completed,
// cancelled) never accept a priority change since they will never be
// claimed again.
func (s *Store) UpdateJobPriority(ctx context.Context, jobID int64, priority int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET priority = ?
		WHERE id = ? AND deleted_at IS NULL AND status NOT IN ('completed', 'cancelled')`, priority, jobID)
	if err != nil {
		return fmt.Errorf("update job priority: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RetryJob resets a failed job back to pending with its entire phase
// pipeline reset to pending (spec §4.9 "retry (if failed → pending, reset
// phases)"). Unlike the reaper's ResetStuckJob this is an explicit
// operator action and does not touch retry_count or max_retries.
func (s *Store) RetryJob(ctx context.Context, jobID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', current_phase_index = 0, worker_id = '',
			started_at = NULL, completed_at = NULL, last_heartbeat = NULL,
			error_message = NULL, error_timestamp = NULL
		WHERE id = ? AND status = 'failed' AND deleted_at IS NULL`, jobID)
	if err != nil {
		return fmt.Errorf("reset job for retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}

	// attempts is a lifetime counter across operator-initiated retries
	// (Open Question #1) and is deliberately left untouched here.
	if _, err := tx.ExecContext(ctx, `
		UPDATE job_phases SET status = 'pending', cost = 0,
			input_tokens = 0, output_tokens = 0, started_at = NULL, completed_at = NULL,
			deliverable_path = '', error_message = NULL, escalation_history = ''
		WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("reset phases for retry: %w", err)
	}

	return tx.Commit()
}

// CountJobsByStatus returns the current job count per status, for the
// control API's GET /metrics gauge (SPEC_FULL §4.9 "per-status job
// gauges").
func (s *Store) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT status, COUNT(*) FROM jobs WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
