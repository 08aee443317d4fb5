package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusInProgress, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusInProgress, JobStatusCompleted, true},
		{JobStatusInProgress, JobStatusInvestigating, true},
		{JobStatusInvestigating, JobStatusInProgress, true},
		{JobStatusInvestigating, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusPending, false},
		{JobStatusFailed, JobStatusPending, true},
		{JobStatusPaused, JobStatusPending, true},
		{JobStatusPaused, JobStatusFailed, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(JobStatusCompleted) {
		t.Error("completed should be terminal")
	}
	if !IsTerminal(JobStatusCancelled) {
		t.Error("cancelled should be terminal")
	}
	if IsTerminal(JobStatusFailed) {
		t.Error("failed should not be terminal: it can be retried")
	}
	if IsTerminal(JobStatusPending) {
		t.Error("pending should not be terminal")
	}
}

func TestNewPipelineAllPending(t *testing.T) {
	phases := NewPipeline(RequiredPhases)
	if len(phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(phases))
	}
	for i, p := range phases {
		if p.Index != i {
			t.Errorf("phase %d has index %d", i, p.Index)
		}
		if p.Status != PhaseStatusPending {
			t.Errorf("phase %d status = %s, want pending", i, p.Status)
		}
	}
}

func TestEscalationHistoryRoundTrip(t *testing.T) {
	p := JobPhase{}
	p.AppendEscalation(EscalationEntry{TierIndex: 1, TierLabel: "default", Reason: "failure"})
	p.AppendEscalation(EscalationEntry{TierIndex: 2, TierLabel: "big-brain", Reason: "timeout"})

	hist := p.EscalationHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 escalation entries, got %d", len(hist))
	}
	if hist[1].TierLabel != "big-brain" {
		t.Errorf("second entry label = %s, want big-brain", hist[1].TierLabel)
	}
}
