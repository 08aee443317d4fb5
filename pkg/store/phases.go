package store

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// ListPhases returns a job's pipeline ordered by phase_index.
func (s *Store) ListPhases(ctx context.Context, jobID int64) ([]models.JobPhase, error) {
	var phases []models.JobPhase
	err := s.db.SelectContext(ctx, &phases, `
		SELECT * FROM job_phases WHERE job_id = ? ORDER BY phase_index ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	return phases, nil
}

// StartPhase marks a phase in_progress with its chosen tier (spec §4.4
// step 2-3).
func (s *Store) StartPhase(ctx context.Context, phase *models.JobPhase) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET status = 'in_progress', tier_index = ?, tier_label = ?,
			tier_reason = ?, started_at = ?
		WHERE job_id = ? AND phase_index = ?`,
		phase.TierIndex, phase.TierLabel, phase.TierReason, now(), phase.JobID, phase.Index)
	if err != nil {
		return fmt.Errorf("start phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementPhaseAttempts bumps the lifetime attempts counter for one
// client.Complete call (spec §8 scenario 3, DESIGN.md Open Question #1:
// counted at the call site inside phase.Runner.Run, not once per phase).
func (s *Store) IncrementPhaseAttempts(ctx context.Context, jobID int64, phaseIndex int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET attempts = attempts + 1 WHERE job_id = ? AND phase_index = ?`,
		jobID, phaseIndex)
	if err != nil {
		return fmt.Errorf("increment phase attempts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletePhase records a successful LLM call result against a phase
// (spec §4.4 step 4, DESIGN.md Open Question #1/#2: attempts is bumped at
// the call site in phase.Runner.Run via IncrementPhaseAttempts, and model
// is overwritten on every success).
func (s *Store) CompletePhase(ctx context.Context, phase *models.JobPhase, deliverablePath string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET status = 'completed', model = ?, cost = cost + ?,
			input_tokens = input_tokens + ?, output_tokens = output_tokens + ?,
			completed_at = ?, deliverable_path = ?
		WHERE job_id = ? AND phase_index = ?`,
		phase.Model, phase.Cost, phase.InputTokens, phase.OutputTokens,
		now(), deliverablePath, phase.JobID, phase.Index)
	if err != nil {
		return fmt.Errorf("complete phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailPhase records a failed phase attempt with its error and escalation
// trail (spec §4.4 step 3f/step 6).
func (s *Store) FailPhase(ctx context.Context, phase *models.JobPhase, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET status = 'failed', error_message = ?,
			escalation_history = ?, completed_at = ?
		WHERE job_id = ? AND phase_index = ?`,
		errMsg, phase.EscalationHistoryJSON, now(), phase.JobID, phase.Index)
	if err != nil {
		return fmt.Errorf("fail phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EscalatePhase updates a phase's current tier and escalation trail
// without changing its status (spec §4.2 rules 5-6 applied mid-attempt).
func (s *Store) EscalatePhase(ctx context.Context, phase *models.JobPhase) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET tier_index = ?, tier_label = ?, tier_reason = ?, escalation_history = ?
		WHERE job_id = ? AND phase_index = ?`,
		phase.TierIndex, phase.TierLabel, phase.TierReason, phase.EscalationHistoryJSON,
		phase.JobID, phase.Index)
	if err != nil {
		return fmt.Errorf("escalate phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SkipPhase marks an optional phase skipped (e.g. timestamp/copy_editor
// disabled by configuration, spec §3.1 "phases").
func (s *Store) SkipPhase(ctx context.Context, jobID int64, phaseIndex int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_phases SET status = 'skipped' WHERE job_id = ? AND phase_index = ?`,
		jobID, phaseIndex)
	if err != nil {
		return fmt.Errorf("skip phase: %w", err)
	}
	return nil
}
