package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	results []*Result
	errs    []error
	calls   int
}

func (f *fakeBackend) call(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits) (*Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return f.results[len(f.results)-1], nil
}

type noopSink struct{ calls int }

func (s *noopSink) EmitCostUpdate(ctx context.Context, tierLabel, model string, inputTokens, outputTokens int, cost float64) {
	s.calls++
}

func newTestFacade(t *testing.T, fb *fakeBackend, sink EventSink) *Facade {
	f := NewFacade(slog.Default(), sink, NoopTraceExporter{})
	f.resolveBackend = func(TierDescriptor) (backend, error) { return fb, nil }
	return f
}

func TestComplete_Success(t *testing.T) {
	fb := &fakeBackend{results: []*Result{{Content: "hi", ModelUsed: "gpt-4o-mini", InputTokens: 1000, OutputTokens: 500}}}
	sink := &noopSink{}
	f := newTestFacade(t, fb, sink)

	res, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "cheap", Type: "openai", Model: "gpt-4o-mini"},
		[]Message{{Role: RoleUser, Content: "hello"}}, Limits{}, SafetyLimits{})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content)
	assert.Greater(t, res.Cost, 0.0)
	assert.Equal(t, 1, sink.calls)
}

func TestComplete_ModelNotAllowed(t *testing.T) {
	fb := &fakeBackend{results: []*Result{{ModelUsed: "gpt-4o-mini"}}}
	f := newTestFacade(t, fb, &noopSink{})

	_, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "cheap", Type: "openai", Model: "gpt-4o-mini"},
		nil, Limits{}, SafetyLimits{ModelAllowlist: []string{"gpt-4o"}})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSafety))
	assert.ErrorIs(t, err, ErrModelNotAllowed)
}

func TestComplete_RunCostCapExceeded(t *testing.T) {
	fb := &fakeBackend{results: []*Result{{ModelUsed: "claude-opus-4", InputTokens: 100000, OutputTokens: 100000}}}
	f := newTestFacade(t, fb, &noopSink{})

	soFar := 0.0
	_, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "big", Type: "anthropic", Model: "claude-opus-4"},
		nil, Limits{}, SafetyLimits{RunCostCap: 1.0, RunCostSoFar: &soFar})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSafety))
	assert.ErrorIs(t, err, ErrCostCapExceeded)
	assert.Equal(t, 0.0, soFar, "cost must not be charged on a rejected call")
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	fb := &fakeBackend{
		errs:    []error{newError(KindTransient, errors.New("connection reset")), nil},
		results: []*Result{{ModelUsed: "gpt-4o-mini"}},
	}
	f := newTestFacade(t, fb, &noopSink{})

	_, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "cheap", Type: "openai", Model: "gpt-4o-mini"},
		nil, Limits{}, SafetyLimits{})
	require.NoError(t, err)
	assert.Equal(t, 2, fb.calls)
}

func TestComplete_PermanentErrorNoRetry(t *testing.T) {
	fb := &fakeBackend{errs: []error{newError(KindPermanent, errors.New("bad request"))}}
	f := newTestFacade(t, fb, &noopSink{})

	_, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "cheap", Type: "openai", Model: "gpt-4o-mini"},
		nil, Limits{}, SafetyLimits{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermanent))
	assert.Equal(t, 1, fb.calls)
}

func TestComplete_UnknownProviderType(t *testing.T) {
	f := NewFacade(slog.Default(), &noopSink{}, nil)
	_, err := f.Complete(context.Background(), TierDescriptor{TierLabel: "mystery", Type: "carrier-pigeon", Model: "x"},
		nil, Limits{}, SafetyLimits{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermanent))
}
