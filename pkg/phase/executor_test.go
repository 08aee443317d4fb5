package phase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/llm"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	started    []models.JobPhase
	completed  []models.JobPhase
	failed     []models.JobPhase
	escalated  []models.JobPhase
	addedCosts []float64
	attempts   int
}

func (f *fakeStore) StartPhase(_ context.Context, p *models.JobPhase) error {
	f.started = append(f.started, *p)
	return nil
}
func (f *fakeStore) IncrementPhaseAttempts(_ context.Context, _ int64, _ int) error {
	f.attempts++
	return nil
}
func (f *fakeStore) CompletePhase(_ context.Context, p *models.JobPhase, path string) error {
	p.DeliverablePath = path
	f.completed = append(f.completed, *p)
	return nil
}
func (f *fakeStore) FailPhase(_ context.Context, p *models.JobPhase, _ string) error {
	f.failed = append(f.failed, *p)
	return nil
}
func (f *fakeStore) EscalatePhase(_ context.Context, p *models.JobPhase) error {
	f.escalated = append(f.escalated, *p)
	return nil
}
func (f *fakeStore) AddActualCost(_ context.Context, _ int64, delta float64) error {
	f.addedCosts = append(f.addedCosts, delta)
	return nil
}

type fakeEventStore struct{}

func (fakeEventStore) AppendEvent(_ context.Context, jobID *int64, eventType models.EventType, data map[string]any) (*models.SessionEvent, error) {
	return &models.SessionEvent{JobID: jobID, EventType: eventType, DataJSON: "{}"}, nil
}

type fakeLLM struct {
	results []*llm.Result
	errs    []error
	calls   int
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.TierDescriptor, _ []llm.Message, _ llm.Limits, _ llm.SafetyLimits) (*llm.Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.results[i], nil
}

func testRouting() *config.RoutingConfig {
	max0, max1 := 15.0, 30.0
	return &config.RoutingConfig{
		Tiers: []config.TierConfig{
			{Label: "cheapskate", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o-mini"}},
			{Label: "default", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o"}},
			{Label: "big-brain", Backend: config.ProviderBinding{Type: config.ProviderAnthropic, Model: "claude-3-opus"}},
		},
		PhaseBaseTiers: map[string]int{"analyst": 0, "formatter": 0, "seo": 0, "manager": 0},
		DurationThresholds: []config.DurationThreshold{
			{MaxMinutes: &max0, TierIndex: 0},
			{MaxMinutes: &max1, TierIndex: 1},
			{TierIndex: 2},
		},
		Escalation: config.EscalationConfig{Enabled: true, OnFailure: true, OnTimeout: true, TimeoutSeconds: 30},
	}
}

func newRunner(fs *fakeStore, fl *fakeLLM) *Runner {
	pub := events.NewPublisher(fakeEventStore{}, events.NewBroadcaster(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewRunner(fs, fl, NewPromptStore(""), pub, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestRunner_SuccessOnFirstAttempt(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{results: []*llm.Result{{Content: "# Analysis\n", ModelUsed: "gpt-4o-mini", InputTokens: 100, OutputTokens: 50, Cost: 0.01}}}
	r := newRunner(fs, fl)

	job := &models.Job{ID: 1, TranscriptFile: "x.vtt", ProjectPath: dir, ProjectName: "x"}
	result, err := r.Run(context.Background(), RunInput{
		Job:     job,
		Phase:   models.JobPhase{JobID: 1, Index: 0, Name: models.PhaseAnalyst},
		Routing: testRouting(),
		Safety:  llm.SafetyLimits{},
	})

	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Equal(t, models.PhaseStatusCompleted, result.Phase.Status)
	require.Len(t, fs.completed, 1)
	require.FileExists(t, result.Phase.DeliverablePath)
	require.Equal(t, []float64{0.01}, fs.addedCosts)
}

func TestRunner_EscalatesOnTransientThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{
		errs:    []error{errors.New("upstream 503"), nil},
		results: []*llm.Result{nil, {Content: "ok", ModelUsed: "gpt-4o", InputTokens: 10, OutputTokens: 10, Cost: 0.02}},
	}
	r := newRunner(fs, fl)

	job := &models.Job{ID: 2, TranscriptFile: "y.vtt", ProjectPath: dir, ProjectName: "y"}
	result, err := r.Run(context.Background(), RunInput{
		Job:     job,
		Phase:   models.JobPhase{JobID: 2, Index: 0, Name: models.PhaseAnalyst},
		Routing: testRouting(),
	})

	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Equal(t, 1, result.Phase.TierIndex)
	require.Len(t, fs.escalated, 1)
	require.Len(t, result.Phase.EscalationHistory(), 1)
	require.Equal(t, 2, fs.attempts)
}

func TestRunner_SafetyErrorFailsImmediately(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{errs: []error{&llm.Error{Kind: llm.KindSafety, Err: llm.ErrCostCapExceeded}}}
	r := newRunner(fs, fl)

	job := &models.Job{ID: 3, TranscriptFile: "z.vtt", ProjectPath: dir, ProjectName: "z"}
	result, err := r.Run(context.Background(), RunInput{
		Job:     job,
		Phase:   models.JobPhase{JobID: 3, Index: 0, Name: models.PhaseAnalyst},
		Routing: testRouting(),
	})

	require.NoError(t, err)
	require.False(t, result.Succeeded)
	require.Equal(t, llm.KindSafety, result.FinalErrKind)
	require.Len(t, fs.failed, 1)
	require.Empty(t, fs.escalated)
}

func TestRunner_ContextTooLargeEscalatesThenFails(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	// Escalates from tier 0 -> 1 -> 2 (last), then fails (exhausted).
	ctxErr := &llm.Error{Kind: llm.KindContextTooLarge, Err: errors.New("too large")}
	fl := &fakeLLM{errs: []error{ctxErr, ctxErr, ctxErr}}
	r := newRunner(fs, fl)

	job := &models.Job{ID: 4, TranscriptFile: "w.vtt", ProjectPath: dir, ProjectName: "w"}
	result, err := r.Run(context.Background(), RunInput{
		Job:     job,
		Phase:   models.JobPhase{JobID: 4, Index: 0, Name: models.PhaseAnalyst},
		Routing: testRouting(),
	})

	require.NoError(t, err)
	require.False(t, result.Succeeded)
	require.Equal(t, llm.KindContextTooLarge, result.FinalErrKind)
	require.Len(t, fs.escalated, 2)
}

func TestRunner_VersionedArtifactForManagerPhase(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{results: []*llm.Result{{Content: "sign-off", ModelUsed: "gpt-4o-mini", InputTokens: 1, OutputTokens: 1}}}
	r := newRunner(fs, fl)

	job := &models.Job{ID: 5, TranscriptFile: "v.vtt", ProjectPath: dir, ProjectName: "v"}
	result, err := r.Run(context.Background(), RunInput{
		Job:     job,
		Phase:   models.JobPhase{JobID: 5, Index: 3, Name: models.PhaseManager},
		Routing: testRouting(),
	})

	require.NoError(t, err)
	require.True(t, result.Succeeded)
	require.Contains(t, result.Phase.DeliverablePath, "copy_revision_v1.md")
}
