package models

import (
	"encoding/json"
	"time"
)

// PhaseName identifies one stage of the transcript pipeline (spec §3.1).
type PhaseName string

const (
	PhaseAnalyst      PhaseName = "analyst"
	PhaseFormatter    PhaseName = "formatter"
	PhaseSEO          PhaseName = "seo"
	PhaseManager      PhaseName = "manager"
	PhaseTimestamp    PhaseName = "timestamp"
	PhaseInvestigate  PhaseName = "investigation"
	PhaseCopyEditor   PhaseName = "copy_editor"
)

// RequiredPhases is the fixed, ordered pipeline every job runs (spec §3.1,
// §8 scenario 1). Optional phases (timestamp, copy_editor) are appended by
// configuration and are never reordered relative to these four.
var RequiredPhases = []PhaseName{PhaseAnalyst, PhaseFormatter, PhaseSEO, PhaseManager}

// PhaseStatus is the lifecycle state of a single JobPhase.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusCompleted  PhaseStatus = "completed"
	PhaseStatusFailed     PhaseStatus = "failed"
	PhaseStatusSkipped    PhaseStatus = "skipped"
)

// EscalationEntry records one tier change during a phase's execution
// (SPEC_FULL §3 "escalation_history"), used by the manifest and the
// recovery prompt to show the full tier trail, not just the final tier.
type EscalationEntry struct {
	TierIndex int       `json:"tier_index"`
	TierLabel string    `json:"tier_label"`
	Reason    string    `json:"reason"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobPhase is one step of one job's pipeline (spec §3.1).
type JobPhase struct {
	ID    int64 `db:"id" json:"id"`
	JobID int64 `db:"job_id" json:"job_id"`
	Index int   `db:"phase_index" json:"phase_index"`

	Name   PhaseName   `db:"name" json:"name"`
	Status PhaseStatus `db:"status" json:"status"`

	TierIndex  int    `db:"tier_index" json:"tier_index"`
	TierLabel  string `db:"tier_label" json:"tier_label"`
	Model      string `db:"model" json:"model"`
	TierReason string `db:"tier_reason" json:"tier_reason"`

	Attempts int `db:"attempts" json:"attempts"`

	Cost         float64 `db:"cost" json:"cost"`
	InputTokens  int     `db:"input_tokens" json:"input_tokens"`
	OutputTokens int     `db:"output_tokens" json:"output_tokens"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	DeliverablePath string  `db:"deliverable_path" json:"deliverable_path,omitempty"`
	ErrorMessage    *string `db:"error_message" json:"error_message,omitempty"`

	// EscalationHistoryJSON is the raw column; EscalationHistory() decodes it.
	EscalationHistoryJSON string `db:"escalation_history" json:"-"`
}

// EscalationHistory decodes the phase's recorded tier-change trail.
func (p *JobPhase) EscalationHistory() []EscalationEntry {
	if p.EscalationHistoryJSON == "" {
		return nil
	}
	var out []EscalationEntry
	_ = json.Unmarshal([]byte(p.EscalationHistoryJSON), &out)
	return out
}

// AppendEscalation appends an entry and re-serializes EscalationHistoryJSON.
func (p *JobPhase) AppendEscalation(e EscalationEntry) {
	hist := p.EscalationHistory()
	hist = append(hist, e)
	b, _ := json.Marshal(hist)
	p.EscalationHistoryJSON = string(b)
}

// optionalPhaseNames is the set of phases a job may opt into beyond the
// required four (spec §3.1 "phases").
var optionalPhaseNames = map[string]PhaseName{
	string(PhaseTimestamp):  PhaseTimestamp,
	string(PhaseCopyEditor): PhaseCopyEditor,
}

// BuildPhaseSequence returns the required phases followed by any
// recognized optional phases named in order, skipping unrecognized names
// (configured optional phases never reorder the required four). Used by job creation (control API submit, ingest watcher) to
// turn configuration into the phase list NewPipeline expects.
func BuildPhaseSequence(optional []string) []PhaseName {
	names := make([]PhaseName, len(RequiredPhases), len(RequiredPhases)+len(optional))
	copy(names, RequiredPhases)
	for _, o := range optional {
		if n, ok := optionalPhaseNames[o]; ok {
			names = append(names, n)
		}
	}
	return names
}

// NewPipeline builds the initial, all-pending phase list for a job given
// the configured phase sequence (required phases plus any optional ones
// the pipeline config's optional_phases enables).
func NewPipeline(names []PhaseName) []JobPhase {
	phases := make([]JobPhase, len(names))
	for i, n := range names {
		phases[i] = JobPhase{
			Index:  i,
			Name:   n,
			Status: PhaseStatusPending,
		}
	}
	return phases
}
