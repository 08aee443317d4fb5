// Package recovery implements the manager-driven recovery protocol of spec
// §4.6: when a required phase exhausts its tier options, a pinned
// top-tier "manager" call decides whether to retry, escalate, supply a
// corrected artifact, or give up. Grounded on tarsy's single-call
// controller shape (pkg/agent/controller/synthesis.go), reused via
// pkg/phase's exported tier-descriptor/timeout helpers so recovery and the
// phase executor resolve the same tier ladder the same way.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/llm"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/phase"
)

// Store is the subset of *store.Store the analyzer needs.
type Store interface {
	UpdateJobStatus(ctx context.Context, jobID int64, status models.JobStatus) error
	IncrementRecoveryUse(ctx context.Context, jobID int64) error
	StartPhase(ctx context.Context, p *models.JobPhase) error
	CompletePhase(ctx context.Context, p *models.JobPhase, deliverablePath string) error
	FailPhase(ctx context.Context, p *models.JobPhase, errMsg string) error
	EscalatePhase(ctx context.Context, p *models.JobPhase) error
	AddActualCost(ctx context.Context, jobID int64, delta float64) error
}

// Analyzer runs the recovery protocol against one failed phase.
type Analyzer struct {
	store  Store
	client llm.Client
	events *events.Publisher
	logger *slog.Logger
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(store Store, client llm.Client, pub *events.Publisher, logger *slog.Logger) *Analyzer {
	return &Analyzer{store: store, client: client, events: pub, logger: logger}
}

// AnalyzeInput is everything the analyzer needs about the failure it is
// being asked to investigate (spec §4.6 step 2).
type AnalyzeInput struct {
	Job          *models.Job
	FailedPhase  models.JobPhase
	Routing      *config.RoutingConfig
	Safety       llm.SafetyLimits
	MaxAttempts  int // recovery budget, spec §4.6 step 7
	FailureKind  llm.Kind
	FailureErr   error
	PriorOutputs map[string]string
}

// Outcome is the final decision applied by the analyzer.
type Outcome struct {
	Action Action
	// Phase is the failed phase's row, updated to reflect RETRY/ESCALATE
	// being re-armed (status reset to pending for the worker to re-run) or
	// FIX having already been applied (status completed).
	Phase models.JobPhase
}

// Analyze implements spec §4.6 steps 1-7.
func (a *Analyzer) Analyze(ctx context.Context, in AnalyzeInput) (*Outcome, error) {
	if in.Job.RecoveryUse >= in.MaxAttempts {
		a.logger.Info("recovery budget exhausted, failing job", "job_id", in.Job.ID, "recovery_use", in.Job.RecoveryUse)
		return &Outcome{Action: ActionFail, Phase: in.FailedPhase}, nil
	}

	if err := a.store.UpdateJobStatus(ctx, in.Job.ID, models.JobStatusInvestigating); err != nil {
		return nil, fmt.Errorf("transition job to investigating: %w", err)
	}
	if err := a.store.IncrementRecoveryUse(ctx, in.Job.ID); err != nil {
		return nil, fmt.Errorf("increment recovery use: %w", err)
	}
	a.events.UserAction(ctx, in.Job.ID, "recovery_started")

	managerTier, ok := in.Routing.PinnedPhases[string(models.PhaseManager)]
	if !ok {
		managerTier = in.Routing.LastTierIndex()
	}
	descriptor, err := phase.DescriptorForTier(in.Routing, managerTier)
	if err != nil {
		return nil, fmt.Errorf("resolve manager tier: %w", err)
	}

	prompt := buildRecoveryPrompt(in)
	result, callErr := a.client.Complete(ctx, descriptor, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are the recovery manager for a stalled transcript-processing pipeline. Decide exactly one action."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Limits{Timeout: phase.CallTimeout(in.Routing)}, in.Safety)

	// Spec §9 "Recovery loop hazard": if the manager call itself fails
	// (including on cost/safety caps), treat it as FAIL rather than looping.
	if callErr != nil {
		a.logger.Warn("recovery manager call failed, treating as FAIL", "job_id", in.Job.ID, "error", callErr)
		return a.finish(ctx, in, ParsedResponse{Action: ActionFail}, fmt.Sprintf("recovery manager call failed: %v", callErr))
	}

	if err := a.store.AddActualCost(ctx, in.Job.ID, result.Cost); err != nil {
		a.logger.Error("failed to record recovery call cost", "job_id", in.Job.ID, "error", err)
	}

	if _, err := phase.WriteRecoveryAnalysis(in.Job.ProjectPath, result.Content); err != nil {
		a.logger.Error("failed to write recovery_analysis.md", "job_id", in.Job.ID, "error", err)
	}

	parsed := Parse(result.Content)
	return a.finish(ctx, in, parsed, result.Content)
}

// finish applies a parsed decision to the failed phase row and returns the
// Outcome the worker acts on.
func (a *Analyzer) finish(ctx context.Context, in AnalyzeInput, parsed ParsedResponse, rawResponse string) (*Outcome, error) {
	ph := in.FailedPhase

	switch parsed.Action {
	case ActionRetry:
		ph.Status = models.PhaseStatusPending
		ph.TierReason = "recovery_retry"
		a.events.UserAction(ctx, in.Job.ID, "recovery_retry")
		return &Outcome{Action: ActionRetry, Phase: ph}, nil

	case ActionEscalate:
		next := ph.TierIndex + 1
		if next > in.Routing.LastTierIndex() {
			// Nothing higher to escalate to; fall through to FAIL.
			return a.applyFail(ctx, in, ph, "recovery escalate requested but no higher tier is available")
		}
		ph.TierIndex = next
		ph.TierLabel = tierLabel(in.Routing, next)
		ph.TierReason = "recovery_escalate"
		ph.Status = models.PhaseStatusPending
		ph.AppendEscalation(models.EscalationEntry{
			TierIndex: next, TierLabel: ph.TierLabel, Reason: "recovery_escalate", Timestamp: time.Now(),
		})
		if err := a.store.EscalatePhase(ctx, &ph); err != nil {
			return nil, fmt.Errorf("persist recovery escalation: %w", err)
		}
		a.events.UserAction(ctx, in.Job.ID, "recovery_escalate")
		return &Outcome{Action: ActionEscalate, Phase: ph}, nil

	case ActionFix:
		path, err := phase.WriteArtifact(in.Job.ProjectPath, ph.Name, parsed.FixedText)
		if err != nil {
			return nil, fmt.Errorf("write recovery fix artifact: %w", err)
		}
		if err := a.store.CompletePhase(ctx, &ph, path); err != nil {
			return nil, fmt.Errorf("persist recovery fix: %w", err)
		}
		ph.DeliverablePath = path
		ph.Status = models.PhaseStatusCompleted
		a.events.PhaseCompleted(ctx, in.Job.ID, string(ph.Name), ph.Cost)
		a.events.UserAction(ctx, in.Job.ID, "recovery_fix")
		return &Outcome{Action: ActionFix, Phase: ph}, nil

	default: // ActionFail
		return a.applyFail(ctx, in, ph, rawResponse)
	}
}

func (a *Analyzer) applyFail(ctx context.Context, in AnalyzeInput, ph models.JobPhase, reason string) (*Outcome, error) {
	if err := a.store.FailPhase(ctx, &ph, reason); err != nil {
		return nil, fmt.Errorf("persist recovery fail: %w", err)
	}
	ph.Status = models.PhaseStatusFailed
	a.events.UserAction(ctx, in.Job.ID, "recovery_fail")
	return &Outcome{Action: ActionFail, Phase: ph}, nil
}

func tierLabel(rc *config.RoutingConfig, idx int) string {
	if idx < 0 || idx >= len(rc.Tiers) {
		return ""
	}
	return rc.Tiers[idx].Label
}

// buildRecoveryPrompt assembles the failing phase name, error
// classification/message, tier history, and partial outputs (spec §4.6
// step 2).
func buildRecoveryPrompt(in AnalyzeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Failing phase\n\n%s (job %d, transcript %s)\n\n", in.FailedPhase.Name, in.Job.ID, in.Job.TranscriptFile)
	fmt.Fprintf(&b, "## Error\n\nkind: %s\n\n%v\n\n", in.FailureKind, in.FailureErr)

	b.WriteString("## Tier history\n\n")
	for _, e := range in.FailedPhase.EscalationHistory() {
		fmt.Fprintf(&b, "- tier %d (%s), reason %s, error %s, at %s\n", e.TierIndex, e.TierLabel, e.Reason, e.ErrorKind, e.Timestamp.Format(time.RFC3339))
	}
	if len(in.FailedPhase.EscalationHistory()) == 0 {
		b.WriteString("(no escalations recorded)\n")
	}

	b.WriteString("\n## Partial outputs from earlier phases\n\n")
	for name, content := range in.PriorOutputs {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", name, content)
	}

	b.WriteString("\nRespond with exactly one decision line: \"ACTION: RETRY\", \"ACTION: ESCALATE\", " +
		"\"ACTION: FIX\" followed by a fenced markdown block containing the corrected artifact, or \"ACTION: FAIL\".")
	return b.String()
}
