package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/codeready-toolchain/cardigan/pkg/config"
)

// EventSink receives the cost_update event a successful call emits (spec
// §4.3 "Side effects"). pkg/events.Publisher implements this; kept as a
// narrow interface here so pkg/llm does not depend on pkg/events.
type EventSink interface {
	EmitCostUpdate(ctx context.Context, tierLabel, model string, inputTokens, outputTokens int, cost float64)
}

// Facade is the concrete llm.Client: safety guards, per-tier circuit
// breaking, in-call retry/backoff, cost accounting, and best-effort trace
// export wrapped around the two provider backends (spec §4.3, SPEC_FULL
// §4.3 "Resilience"/"Observability export").
type Facade struct {
	logger         *slog.Logger
	sink           EventSink
	tracer         TraceExporter
	mu             sync.Mutex
	breakers       map[string]*gobreaker.CircuitBreaker
	resolveBackend func(TierDescriptor) (backend, error)
}

// NewFacade builds a Facade. tracer may be nil, in which case traces are
// discarded.
func NewFacade(logger *slog.Logger, sink EventSink, tracer TraceExporter) *Facade {
	if tracer == nil {
		tracer = NoopTraceExporter{}
	}
	return &Facade{
		logger:         logger,
		sink:           sink,
		tracer:         tracer,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
		resolveBackend: backendFor,
	}
}

func (f *Facade) breakerFor(tier TierDescriptor) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.breakers[tier.TierLabel]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-tier-" + tier.TierLabel,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.breakers[tier.TierLabel] = b
	return b
}

func backendFor(tier TierDescriptor) (backend, error) {
	switch config.ProviderType(tier.Type) {
	case config.ProviderOpenAICompatible:
		return openAIBackend{}, nil
	case config.ProviderAnthropic:
		return anthropicBackend{}, nil
	default:
		return nil, newError(KindPermanent, fmt.Errorf("unknown provider type %q for tier %s", tier.Type, tier.TierLabel))
	}
}

// Complete implements Client (spec §4.3).
func (f *Facade) Complete(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits, safety SafetyLimits) (*Result, error) {
	if len(safety.ModelAllowlist) > 0 && !slices.Contains(safety.ModelAllowlist, tier.Model) {
		return nil, newError(KindSafety, fmt.Errorf("%w: %s", ErrModelNotAllowed, tier.Model))
	}

	be, err := f.resolveBackend(tier)
	if err != nil {
		return nil, err
	}
	breakerResult, err := f.breakerFor(tier).Execute(func() (interface{}, error) {
		return f.callWithRetry(ctx, be, tier, messages, limits)
	})

	trace := CallTrace{TraceID: newTraceID(), TierLabel: tier.TierLabel, Model: tier.Model, Timestamp: time.Now()}
	if err != nil {
		trace.Err = err.Error()
		f.tracer.Export(ctx, trace)
		return nil, err
	}

	result := breakerResult.(*Result)
	result.Cost = computeCost(result.ModelUsed, result.InputTokens, result.OutputTokens)

	if safety.MaxCostPer1kTokens > 0 && costPer1kTokens(result) > safety.MaxCostPer1kTokens {
		return nil, newError(KindSafety, fmt.Errorf("%w: %.4f > %.4f", ErrTokenCostTooHigh, costPer1kTokens(result), safety.MaxCostPer1kTokens))
	}

	if safety.RunCostCap > 0 && safety.RunCostSoFar != nil {
		if *safety.RunCostSoFar+result.Cost > safety.RunCostCap {
			return nil, newError(KindSafety, fmt.Errorf("%w: %.4f + %.4f > %.4f", ErrCostCapExceeded, *safety.RunCostSoFar, result.Cost, safety.RunCostCap))
		}
		*safety.RunCostSoFar += result.Cost
	}

	trace.InputTokens = result.InputTokens
	trace.OutputTokens = result.OutputTokens
	trace.Cost = result.Cost
	trace.LatencyMS = result.LatencyMS
	f.tracer.Export(ctx, trace)

	if f.sink != nil {
		f.sink.EmitCostUpdate(ctx, tier.TierLabel, result.ModelUsed, result.InputTokens, result.OutputTokens, result.Cost)
	}

	return result, nil
}

// callWithRetry retries Transient failures with exponential backoff
// strictly inside this one Complete call (SPEC_FULL §4.3: "never
// substitute for §4.4's escalation loop" — that loop picks a new tier,
// this loop just re-tries the same one a bounded number of times for
// blips like a single dropped connection).
func (f *Facade) callWithRetry(ctx context.Context, be backend, tier TierDescriptor, messages []Message, limits Limits) (*Result, error) {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	bo = backoff.WithContext(bo, ctx)

	var result *Result
	operation := func() error {
		r, err := be.call(ctx, tier, messages, limits)
		if err != nil {
			if IsKind(err, KindTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			return nil, permErr.Unwrap()
		}
		return nil, err
	}
	return result, nil
}
