// Package phase implements the single-phase execution algorithm of spec
// §4.4: select a tier, call the LLM, write the resulting artifact, and
// escalate through the tier ladder on recoverable failure. Grounded on
// tarsy's single-LLM-call controller (pkg/agent/controller/synthesis.go),
// generalized from "one controller per agent turn" to "one phase per
// pipeline step", with the escalation loop added since tarsy's controller
// has no tier concept of its own.
package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/llm"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/tier"
)

// maxEscalationIterations is the hard safety cap of spec §4.4 step 3.
const maxEscalationIterations = 10

// Store is the subset of *store.Store the executor needs.
type Store interface {
	StartPhase(ctx context.Context, phase *models.JobPhase) error
	IncrementPhaseAttempts(ctx context.Context, jobID int64, phaseIndex int) error
	CompletePhase(ctx context.Context, phase *models.JobPhase, deliverablePath string) error
	FailPhase(ctx context.Context, phase *models.JobPhase, errMsg string) error
	EscalatePhase(ctx context.Context, phase *models.JobPhase) error
	AddActualCost(ctx context.Context, jobID int64, delta float64) error
}

// Runner executes one phase of one job's pipeline.
type Runner struct {
	store   Store
	client  llm.Client
	prompts *PromptStore
	events  *events.Publisher
	logger  *slog.Logger
}

// NewRunner builds a Runner. prompts may be shared across Runners.
func NewRunner(store Store, client llm.Client, prompts *PromptStore, pub *events.Publisher, logger *slog.Logger) *Runner {
	return &Runner{store: store, client: client, prompts: prompts, events: pub, logger: logger}
}

// RunInput is everything the executor needs to run one phase (spec §4.4
// "Inputs per phase").
type RunInput struct {
	Job             *models.Job
	Phase           models.JobPhase
	Routing         *config.RoutingConfig
	Safety          llm.SafetyLimits
	Transcript      string
	ProjectName     string
	PriorOutputs    map[string]string
	SSTContext      map[string]string
	DurationMinutes float64
	// CancelCheck, if non-nil, is polled between escalation attempts so a
	// cooperative job cancellation (spec §4.5) can stop the loop between
	// calls without aborting an outstanding LLM call mid-flight.
	CancelCheck func() bool
}

// RunResult is the outcome of one Run call.
type RunResult struct {
	Phase        models.JobPhase
	Succeeded    bool
	FinalErrKind llm.Kind
	FinalErr     error
}

// Run implements spec §4.4 steps 1-4.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	ph := in.Phase

	decision := tier.Select(in.Routing, string(ph.Name), in.DurationMinutes, nil, tier.ReasonInitial)
	ph.TierIndex = decision.TierIndex
	ph.TierLabel = decision.TierLabel
	ph.TierReason = decision.Reason

	if err := r.store.StartPhase(ctx, &ph); err != nil {
		return nil, fmt.Errorf("start phase %s: %w", ph.Name, err)
	}
	r.events.PhaseStarted(ctx, in.Job.ID, string(ph.Name), ph.TierLabel)

	var lastErr error
	var lastKind llm.Kind

	for attempt := 0; attempt < maxEscalationIterations; attempt++ {
		if in.CancelCheck != nil && in.CancelCheck() {
			lastErr = errors.New("job cancelled during phase execution")
			break
		}

		descriptor, err := DescriptorForTier(in.Routing, ph.TierIndex)
		if err != nil {
			lastErr = err
			break
		}

		prompt, err := r.prompts.Render(ph.Name, PromptData{
			Phase:          ph.Name,
			TranscriptFile: in.Job.TranscriptFile,
			ProjectName:    in.ProjectName,
			Transcript:     in.Transcript,
			PriorOutputs:   in.PriorOutputs,
			SSTContext:     in.SSTContext,
		})
		if err != nil {
			lastErr = err
			break
		}

		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: buildUserMessage(in)},
		}
		limits := llm.Limits{Timeout: CallTimeout(in.Routing)}

		if err := r.store.IncrementPhaseAttempts(ctx, in.Job.ID, ph.Index); err != nil {
			return nil, fmt.Errorf("record attempt for phase %s: %w", ph.Name, err)
		}
		result, callErr := r.client.Complete(ctx, descriptor, messages, limits, in.Safety)
		if callErr == nil {
			ph.Model = result.ModelUsed
			ph.Cost = result.Cost
			ph.InputTokens = result.InputTokens
			ph.OutputTokens = result.OutputTokens

			path, err := writeArtifact(in.Job.ProjectPath, ph.Name, result.Content)
			if err != nil {
				lastErr = fmt.Errorf("write artifact: %w", err)
				break
			}
			if err := r.store.CompletePhase(ctx, &ph, path); err != nil {
				return nil, fmt.Errorf("persist completed phase %s: %w", ph.Name, err)
			}
			ph.DeliverablePath = path
			ph.Status = models.PhaseStatusCompleted

			if err := r.store.AddActualCost(ctx, in.Job.ID, result.Cost); err != nil {
				r.logger.Error("failed to record actual cost", "job_id", in.Job.ID, "phase", ph.Name, "error", err)
			}
			r.events.PhaseCompleted(ctx, in.Job.ID, string(ph.Name), result.Cost)
			return &RunResult{Phase: ph, Succeeded: true}, nil
		}

		lastErr = callErr
		kind, reason := classify(callErr)
		lastKind = kind

		if kind == llm.KindSafety || kind == llm.KindPermanent {
			break
		}

		current := ph.TierIndex
		next := tier.Select(in.Routing, string(ph.Name), in.DurationMinutes, &current, reason)
		if next.Exhausted {
			break
		}
		if next.TierIndex == current && reason != tier.ReasonContextTooLarge {
			// Escalation disabled for this reason: the router held the tier
			// steady, so retrying it again would just repeat the failure.
			break
		}

		fromLabel := ph.TierLabel
		ph.TierIndex = next.TierIndex
		ph.TierLabel = next.TierLabel
		ph.TierReason = next.Reason
		ph.AppendEscalation(models.EscalationEntry{
			TierIndex: next.TierIndex,
			TierLabel: next.TierLabel,
			Reason:    next.Reason,
			ErrorKind: string(kind),
			Timestamp: time.Now(),
		})
		if err := r.store.EscalatePhase(ctx, &ph); err != nil {
			return nil, fmt.Errorf("persist escalation for phase %s: %w", ph.Name, err)
		}
		r.events.ModelFallback(ctx, in.Job.ID, string(ph.Name), fromLabel, next.TierLabel, next.Reason)
	}

	errMsg := "phase exhausted its escalation budget with no successful call"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if err := r.store.FailPhase(ctx, &ph, errMsg); err != nil {
		return nil, fmt.Errorf("persist failed phase %s: %w", ph.Name, err)
	}
	ph.Status = models.PhaseStatusFailed
	r.events.PhaseFailed(ctx, in.Job.ID, string(ph.Name), errMsg)

	return &RunResult{Phase: ph, Succeeded: false, FinalErrKind: lastKind, FinalErr: lastErr}, nil
}

// classify maps a llm.Client error to the taxonomy Kind and the router
// Reason it implies (spec §4.4 steps 3d-3f, §7 "Taxonomy").
func classify(err error) (llm.Kind, tier.Reason) {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.KindTransient, tier.ReasonTimeout
	}
	switch {
	case llm.IsKind(err, llm.KindContextTooLarge):
		return llm.KindContextTooLarge, tier.ReasonContextTooLarge
	case llm.IsKind(err, llm.KindSafety):
		return llm.KindSafety, tier.ReasonFailure
	case llm.IsKind(err, llm.KindPermanent):
		return llm.KindPermanent, tier.ReasonFailure
	default:
		return llm.KindTransient, tier.ReasonFailure
	}
}

// DescriptorForTier resolves a routing tier index to the concrete backend
// binding the LLM client dispatches on (SPEC_FULL §4.2 "Provider binding").
// Exported so pkg/recovery's manager call can resolve the same tiers.
func DescriptorForTier(rc *config.RoutingConfig, idx int) (llm.TierDescriptor, error) {
	if idx < 0 || idx >= len(rc.Tiers) {
		return llm.TierDescriptor{}, fmt.Errorf("tier index %d out of range [0,%d]", idx, len(rc.Tiers)-1)
	}
	t := rc.Tiers[idx]
	return llm.TierDescriptor{
		TierLabel: t.Label,
		Type:      string(t.Backend.Type),
		Model:     t.Backend.Model,
		APIKeyEnv: t.Backend.APIKeyEnv,
		BaseURL:   t.Backend.BaseURL,
	}, nil
}

// CallTimeout falls back to a conservative default when escalation config
// doesn't specify a per-call timeout.
func CallTimeout(rc *config.RoutingConfig) time.Duration {
	if rc.Escalation.TimeoutSeconds > 0 {
		return time.Duration(rc.Escalation.TimeoutSeconds) * time.Second
	}
	return 2 * time.Minute
}

// buildUserMessage assembles the transcript excerpt, prior-phase outputs,
// and optional SST context into the call's user turn (spec §4.4 step 3a).
func buildUserMessage(in RunInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Transcript (%s)\n\n%s\n\n", in.Job.TranscriptFile, in.Transcript)
	b.WriteString("## Prior phase outputs\n\n")
	b.WriteString(formatPriorOutputs(in.PriorOutputs))
	if len(in.SSTContext) > 0 {
		b.WriteString("\n## External context\n\n")
		for k, v := range in.SSTContext {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	return b.String()
}
