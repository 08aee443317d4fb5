package recovery

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
	statuses       []models.JobStatus
	recoveryUses   int
	started        []models.JobPhase
	completed      []models.JobPhase
	failed         []models.JobPhase
	escalated      []models.JobPhase
	addedCosts     []float64
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, _ int64, status models.JobStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}
func (f *fakeStore) IncrementRecoveryUse(_ context.Context, _ int64) error {
	f.recoveryUses++
	return nil
}
func (f *fakeStore) StartPhase(_ context.Context, p *models.JobPhase) error {
	f.started = append(f.started, *p)
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
	result *llm.Result
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.TierDescriptor, _ []llm.Message, _ llm.Limits, _ llm.SafetyLimits) (*llm.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testRouting() *config.RoutingConfig {
	max0, max1 := 15.0, 30.0
	return &config.RoutingConfig{
		Tiers: []config.TierConfig{
			{Label: "cheapskate", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o-mini"}},
			{Label: "default", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o"}},
			{Label: "big-brain", Backend: config.ProviderBinding{Type: config.ProviderAnthropic, Model: "claude-3-opus"}},
		},
		PhaseBaseTiers:     map[string]int{"analyst": 0, "formatter": 0, "seo": 0, "manager": 0},
		PinnedPhases:       map[string]int{"manager": 2},
		DurationThresholds: []config.DurationThreshold{{MaxMinutes: &max0, TierIndex: 0}, {MaxMinutes: &max1, TierIndex: 1}, {TierIndex: 2}},
		Escalation:         config.EscalationConfig{Enabled: true, OnFailure: true, OnTimeout: true, TimeoutSeconds: 30},
	}
}

func newAnalyzer(fs *fakeStore, fl *fakeLLM) *Analyzer {
	pub := events.NewPublisher(fakeEventStore{}, events.NewBroadcaster(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewAnalyzer(fs, fl, pub, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func baseInput(dir string, fl *fakeLLM) AnalyzeInput {
	return AnalyzeInput{
		Job:         &models.Job{ID: 1, TranscriptFile: "x.vtt", ProjectPath: dir, RecoveryUse: 0},
		FailedPhase: models.JobPhase{JobID: 1, Index: 0, Name: models.PhaseAnalyst, TierIndex: 0, TierLabel: "cheapskate"},
		Routing:     testRouting(),
		MaxAttempts: 3,
		FailureKind: llm.KindTransient,
		FailureErr:  errors.New("upstream 503"),
	}
}

func TestAnalyze_BudgetExhaustedFailsWithoutCallingManager(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: RETRY"}}
	a := newAnalyzer(fs, fl)

	in := baseInput(dir, fl)
	in.Job.RecoveryUse = 3

	out, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, ActionFail, out.Action)
	require.Empty(t, fs.statuses, "should never transition the job when the budget is already spent")
	require.Zero(t, fs.recoveryUses)
}

func TestAnalyze_RetryDecision(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: RETRY\n\nTry the same tier again.", Cost: 0.01}}
	a := newAnalyzer(fs, fl)

	out, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.Equal(t, ActionRetry, out.Action)
	require.Equal(t, models.PhaseStatusPending, out.Phase.Status)
	require.Equal(t, []models.JobStatus{models.JobStatusInvestigating}, fs.statuses)
	require.Equal(t, 1, fs.recoveryUses)
}

func TestAnalyze_EscalateDecisionBumpsTier(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: ESCALATE\n\nNeeds a stronger model.", Cost: 0.01}}
	a := newAnalyzer(fs, fl)

	out, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.Equal(t, ActionEscalate, out.Action)
	require.Equal(t, 1, out.Phase.TierIndex)
	require.Equal(t, "default", out.Phase.TierLabel)
	require.Len(t, fs.escalated, 1)
}

func TestAnalyze_EscalateAtTopTierFails(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: ESCALATE", Cost: 0.01}}
	a := newAnalyzer(fs, fl)

	in := baseInput(dir, fl)
	in.FailedPhase.TierIndex = 2 // already at the top tier
	out, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, ActionFail, out.Action)
	require.Len(t, fs.failed, 1)
}

func TestAnalyze_FixDecisionWritesArtifactAndCompletesPhase(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{
		Content: "ACTION: FIX\n\n```markdown\n# Corrected Analysis\n\nBetter content.\n```\n",
		Cost:    0.02,
	}}
	a := newAnalyzer(fs, fl)

	out, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.Equal(t, ActionFix, out.Action)
	require.Equal(t, models.PhaseStatusCompleted, out.Phase.Status)
	require.FileExists(t, out.Phase.DeliverablePath)
	content, readErr := os.ReadFile(out.Phase.DeliverablePath)
	require.NoError(t, readErr)
	require.Contains(t, string(content), "Corrected Analysis")
	require.Len(t, fs.completed, 1)
}

func TestAnalyze_FailDecision(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: FAIL\n\nUnrecoverable.", Cost: 0.0}}
	a := newAnalyzer(fs, fl)

	out, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.Equal(t, ActionFail, out.Action)
	require.Len(t, fs.failed, 1)
}

func TestAnalyze_ManagerCallErrorTreatedAsFail(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{err: errors.New("manager call timed out")}
	a := newAnalyzer(fs, fl)

	out, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.Equal(t, ActionFail, out.Action)
	require.Len(t, fs.failed, 1)
	require.Empty(t, fs.addedCosts, "a failed manager call has no cost to record")
}

func TestAnalyze_WritesRecoveryAnalysisFile(t *testing.T) {
	dir := t.TempDir()
	fs := &fakeStore{}
	fl := &fakeLLM{result: &llm.Result{Content: "ACTION: RETRY\n\nreason text", Cost: 0.01}}
	a := newAnalyzer(fs, fl)

	_, err := a.Analyze(context.Background(), baseInput(dir, fl))
	require.NoError(t, err)
	require.FileExists(t, dir+"/recovery_analysis.md")
}
