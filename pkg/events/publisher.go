package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// eventStore is the subset of *store.Store the publisher needs, kept
// narrow so this package doesn't otherwise depend on pkg/store's full
// surface (tarsy's EventPublisher takes a raw *sql.DB for the same
// reason — the publisher only ever inserts and never queries).
type eventStore interface {
	AppendEvent(ctx context.Context, jobID *int64, eventType models.EventType, data map[string]any) (*models.SessionEvent, error)
}

// Publisher persists every event durably, then fans it out live. Matches
// tarsy's EventPublisher surface (one typed method per event kind) but
// collapses the persist+notify transaction into persist-then-broadcast,
// since there's no cross-process NOTIFY to keep atomic with the insert.
type Publisher struct {
	store  eventStore
	bus    *Broadcaster
	logger *slog.Logger
}

func NewPublisher(store eventStore, bus *Broadcaster, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, bus: bus, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, jobID *int64, eventType models.EventType, data map[string]any) {
	evt, err := p.store.AppendEvent(ctx, jobID, eventType, data)
	if err != nil {
		p.logger.Error("failed to persist event", "event_type", eventType, "error", err)
		return
	}

	var decoded map[string]any
	_ = json.Unmarshal([]byte(evt.DataJSON), &decoded)
	p.bus.Broadcast(models.EventWithData{SessionEvent: *evt, Data: decoded})
}

func (p *Publisher) JobQueued(ctx context.Context, jobID int64, priority int) {
	p.publish(ctx, &jobID, models.EventJobQueued, map[string]any{"priority": priority})
}

func (p *Publisher) JobStarted(ctx context.Context, jobID int64, workerID string) {
	p.publish(ctx, &jobID, models.EventJobStarted, map[string]any{"worker_id": workerID})
}

func (p *Publisher) JobCompleted(ctx context.Context, jobID int64, actualCost float64) {
	p.publish(ctx, &jobID, models.EventJobCompleted, map[string]any{"actual_cost": actualCost})
}

func (p *Publisher) JobFailed(ctx context.Context, jobID int64, reason string) {
	p.publish(ctx, &jobID, models.EventJobFailed, map[string]any{"reason": reason})
}

func (p *Publisher) JobCancelled(ctx context.Context, jobID int64) {
	p.publish(ctx, &jobID, models.EventJobCancelled, nil)
}

func (p *Publisher) PhaseStarted(ctx context.Context, jobID int64, phase string, tierLabel string) {
	p.publish(ctx, &jobID, models.EventPhaseStarted, map[string]any{"phase": phase, "tier": tierLabel})
}

func (p *Publisher) PhaseCompleted(ctx context.Context, jobID int64, phase string, cost float64) {
	p.publish(ctx, &jobID, models.EventPhaseCompleted, map[string]any{"phase": phase, "cost": cost})
}

func (p *Publisher) PhaseFailed(ctx context.Context, jobID int64, phase string, errMsg string) {
	p.publish(ctx, &jobID, models.EventPhaseFailed, map[string]any{"phase": phase, "error": errMsg})
}

func (p *Publisher) ModelSelected(ctx context.Context, jobID int64, phase, tierLabel, model, reason string) {
	p.publish(ctx, &jobID, models.EventModelSelected, map[string]any{
		"phase": phase, "tier": tierLabel, "model": model, "reason": reason,
	})
}

func (p *Publisher) ModelFallback(ctx context.Context, jobID int64, phase string, fromTier, toTier string, reason string) {
	p.publish(ctx, &jobID, models.EventModelFallback, map[string]any{
		"phase": phase, "from_tier": fromTier, "to_tier": toTier, "reason": reason,
	})
}

func (p *Publisher) SystemPause(ctx context.Context) {
	p.publish(ctx, nil, models.EventSystemPause, nil)
}

func (p *Publisher) SystemResume(ctx context.Context) {
	p.publish(ctx, nil, models.EventSystemResume, nil)
}

func (p *Publisher) SystemError(ctx context.Context, msg string) {
	p.publish(ctx, nil, models.EventSystemError, map[string]any{"message": msg})
}

func (p *Publisher) UserAction(ctx context.Context, jobID int64, action string) {
	p.publish(ctx, &jobID, models.EventUserAction, map[string]any{"action": action})
}

// EmitCostUpdate implements llm.EventSink with no job scope. The LLM
// facade is built with the Publisher itself as its sink, so every
// cost_update event it emits, for phase and recovery calls alike, carries
// no job id. JobCostSink below is the job-scoped alternative; it is not
// wired into the facade.
func (p *Publisher) EmitCostUpdate(ctx context.Context, tierLabel, model string, inputTokens, outputTokens int, cost float64) {
	p.publish(ctx, nil, models.EventCostUpdate, map[string]any{
		"tier": tierLabel, "model": model,
		"input_tokens": inputTokens, "output_tokens": outputTokens, "cost": cost,
	})
}

// JobCostSink adapts a Publisher into an llm.EventSink scoped to one job,
// attributing every cost_update event it emits to that job (spec §4.3
// "Side effects", §5 "cost accounting").
type JobCostSink struct {
	Publisher *Publisher
	JobID     int64
}

func (s JobCostSink) EmitCostUpdate(ctx context.Context, tierLabel, model string, inputTokens, outputTokens int, cost float64) {
	s.Publisher.publish(ctx, &s.JobID, models.EventCostUpdate, map[string]any{
		"tier": tierLabel, "model": model,
		"input_tokens": inputTokens, "output_tokens": outputTokens, "cost": cost,
	})
}
