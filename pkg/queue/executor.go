package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/llm"
	"github.com/codeready-toolchain/cardigan/pkg/metrics"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/phase"
	"github.com/codeready-toolchain/cardigan/pkg/recovery"
	"github.com/codeready-toolchain/cardigan/pkg/sst"
	"github.com/codeready-toolchain/cardigan/pkg/tier"
)

// maxRecoveryRounds bounds how many times one job's pipeline loop will
// re-enter the same phase after a RETRY/ESCALATE recovery decision before
// giving up defensively; the recovery budget itself
// (config.WorkerConfig.MaxRecoveryAttempts) is enforced inside
// recovery.Analyzer, this is just a belt-and-braces loop guard so a bug in
// that budget can never spin a worker forever on one job.
const maxRecoveryRounds = 20

// JobExecutor drives one job's phase pipeline end to end: read the
// transcript, run each pending phase in order, hand failed phases to the
// recovery analyzer, and finish with a completed/failed job plus a
// manifest (spec §4.4 "Inputs per phase" through §4.6's recovery protocol,
// tied together — tarsy has no direct analogue since its SessionExecutor
// lives outside pkg/queue; here the pipeline-sequencing concern belongs to
// the queue package because it owns the per-job cost accumulator the
// safety guard needs threaded across every phase and recovery call).
type JobExecutor struct {
	store     Store
	runner    *phase.Runner
	analyzer  *recovery.Analyzer
	events    *events.Publisher
	sstClient sst.Provider
	snapshot  *config.Snapshot
	logger    *slog.Logger
}

// NewJobExecutor builds a JobExecutor. sstClient may be nil, in which case
// sst.NoopProvider is used.
func NewJobExecutor(store Store, runner *phase.Runner, analyzer *recovery.Analyzer, pub *events.Publisher, sstClient sst.Provider, snapshot *config.Snapshot, logger *slog.Logger) *JobExecutor {
	if sstClient == nil {
		sstClient = sst.NoopProvider{}
	}
	return &JobExecutor{store: store, runner: runner, analyzer: analyzer, events: pub, sstClient: sstClient, snapshot: snapshot, logger: logger}
}

// Execute runs job's full pipeline. cancelCheck is polled between
// escalation attempts and pipeline steps so a worker-triggered
// cancellation (spec §4.5) stops the loop promptly between LLM calls.
func (e *JobExecutor) Execute(ctx context.Context, job *models.Job, cancelCheck func() bool) error {
	cfg := e.snapshot.Current()

	transcript, err := os.ReadFile(job.TranscriptFile)
	if err != nil {
		return e.fail(ctx, job, fmt.Sprintf("read transcript: %v", err))
	}
	durationMinutes := tier.EstimateDurationMinutes(wordCount(string(transcript)))

	var sstRecordID string
	if job.SSTRecordID != nil {
		sstRecordID = *job.SSTRecordID
	}
	sstContext, err := e.sstClient.Lookup(ctx, sstRecordID)
	if err != nil {
		e.logger.Warn("sst lookup failed, proceeding without context", "job_id", job.ID, "error", err)
		sstContext = map[string]string{}
	}

	runCostSoFar := job.ActualCost
	safety := llm.SafetyLimits{
		ModelAllowlist:     cfg.Safety.ModelAllowlist,
		MaxCostPer1kTokens: cfg.Safety.MaxCostPer1kTokens,
		RunCostCap:         cfg.Safety.RunCostCap,
		RunCostSoFar:       &runCostSoFar,
	}

	priorOutputs := map[string]string{}
	for _, p := range job.Phases {
		if p.Status == models.PhaseStatusCompleted {
			if content, rerr := phase.ReadArtifact(p); rerr == nil && content != "" {
				priorOutputs[string(p.Name)] = content
			}
		}
	}

	for i := job.CurrentPhaseIndex; i < len(job.Phases); i++ {
		if cancelCheck != nil && cancelCheck() {
			return e.cancel(ctx, job)
		}

		ph := job.Phases[i]
		if ph.Status == models.PhaseStatusCompleted || ph.Status == models.PhaseStatusSkipped {
			continue
		}

		ph, ok, err := e.runPhaseWithRecovery(ctx, job, ph, cfg, safety, string(transcript), durationMinutes, priorOutputs, sstContext, cancelCheck)
		if err != nil {
			return err
		}
		job.Phases[i] = ph
		if !ok {
			return nil // job already transitioned to failed or cancelled inside runPhaseWithRecovery
		}

		if content, rerr := phase.ReadArtifact(ph); rerr == nil && content != "" {
			priorOutputs[string(ph.Name)] = content
		}

		job.CurrentPhaseIndex = i + 1
		if err := e.store.AdvancePhaseIndex(ctx, job.ID, job.CurrentPhaseIndex); err != nil {
			e.logger.Error("failed to advance phase index", "job_id", job.ID, "error", err)
		}
	}

	if err := phase.WriteManifest(job.ProjectPath, job); err != nil {
		e.logger.Error("failed to write manifest", "job_id", job.ID, "error", err)
	}
	if err := e.store.CompleteJob(ctx, job.ID, runCostSoFar); err != nil {
		return fmt.Errorf("complete job %d: %w", job.ID, err)
	}
	e.events.JobCompleted(ctx, job.ID, runCostSoFar)
	metrics.ObserveJobCost(runCostSoFar)
	return nil
}

// runPhaseWithRecovery runs one phase, looping through the recovery
// analyzer on failure until the phase completes, the job is failed, or
// maxRecoveryRounds is hit (spec §4.4 step 4 -> §4.6 handoff).
func (e *JobExecutor) runPhaseWithRecovery(
	ctx context.Context,
	job *models.Job,
	ph models.JobPhase,
	cfg *config.Config,
	safety llm.SafetyLimits,
	transcript string,
	durationMinutes float64,
	priorOutputs map[string]string,
	sstContext map[string]string,
	cancelCheck func() bool,
) (models.JobPhase, bool, error) {
	for round := 0; round < maxRecoveryRounds; round++ {
		result, err := e.runner.Run(ctx, phase.RunInput{
			Job:             job,
			Phase:           ph,
			Routing:         &cfg.Routing,
			Safety:          safety,
			Transcript:      transcript,
			ProjectName:     job.ProjectName,
			PriorOutputs:    priorOutputs,
			SSTContext:      sstContext,
			DurationMinutes: durationMinutes,
			CancelCheck:     cancelCheck,
		})
		if err != nil {
			return ph, false, fmt.Errorf("run phase %s: %w", ph.Name, err)
		}
		ph = result.Phase
		if result.Succeeded {
			metrics.RecordTierCall(ph.TierLabel, string(ph.Name), "success")
			return ph, true, nil
		}
		metrics.RecordTierCall(ph.TierLabel, string(ph.Name), "error")

		if cancelCheck != nil && cancelCheck() {
			return ph, false, e.cancel(ctx, job)
		}

		outcome, err := e.analyzer.Analyze(ctx, recovery.AnalyzeInput{
			Job:          job,
			FailedPhase:  ph,
			Routing:      &cfg.Routing,
			Safety:       safety,
			MaxAttempts:  cfg.Worker.MaxRecoveryAttempts,
			FailureKind:  result.FinalErrKind,
			FailureErr:   result.FinalErr,
			PriorOutputs: priorOutputs,
		})
		if err != nil {
			return ph, false, fmt.Errorf("analyze failed phase %s: %w", ph.Name, err)
		}
		ph = outcome.Phase

		switch outcome.Action {
		case recovery.ActionRetry, recovery.ActionEscalate:
			if err := e.store.UpdateJobStatus(ctx, job.ID, models.JobStatusInProgress); err != nil {
				return ph, false, fmt.Errorf("resume job %d after recovery: %w", job.ID, err)
			}
			continue
		case recovery.ActionFix:
			return ph, true, nil
		default: // ActionFail
			if err := e.fail(ctx, job, fmt.Sprintf("phase %s failed and recovery gave up", ph.Name)); err != nil {
				return ph, false, err
			}
			return ph, false, nil
		}
	}

	if err := e.fail(ctx, job, fmt.Sprintf("phase %s exceeded recovery round limit", ph.Name)); err != nil {
		return ph, false, err
	}
	return ph, false, nil
}

func (e *JobExecutor) fail(ctx context.Context, job *models.Job, reason string) error {
	if err := e.store.FailJob(ctx, job.ID, reason); err != nil {
		return fmt.Errorf("fail job %d: %w", job.ID, err)
	}
	e.events.JobFailed(ctx, job.ID, reason)
	return nil
}

func (e *JobExecutor) cancel(ctx context.Context, job *models.Job) error {
	if err := e.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled); err != nil {
		return fmt.Errorf("cancel job %d: %w", job.ID, err)
	}
	e.events.JobCancelled(ctx, job.ID)
	return nil
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
