// Package models holds the data types persisted and exchanged by Cardigan:
// jobs, phases and events. The control API's request/response shapes live
// in pkg/api.
package models

import "time"

// JobStatus is the lifecycle state of a Job (spec §3.1, transitions in §7).
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusInProgress    JobStatus = "in_progress"
	JobStatusInvestigating JobStatus = "investigating"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusCancelled     JobStatus = "cancelled"
	JobStatusPaused        JobStatus = "paused"
)

// allowedTransitions encodes the status graph from spec §7.
var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusInProgress: true,
		JobStatusCancelled:  true,
		JobStatusPaused:     true,
	},
	JobStatusInProgress: {
		JobStatusCompleted:     true,
		JobStatusFailed:        true,
		JobStatusPaused:        true,
		JobStatusCancelled:     true,
		JobStatusInvestigating: true,
	},
	JobStatusInvestigating: {
		JobStatusInProgress: true,
		JobStatusFailed:     true,
	},
	JobStatusPaused: {
		JobStatusPending:   true,
		JobStatusCancelled: true,
	},
	JobStatusFailed: {
		JobStatusPending: true, // via retry
	},
}

// CanTransition reports whether moving from "from" to "to" is a legal
// transition per the state graph in spec §7.
func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(s JobStatus) bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Job is a single transcript pass through the pipeline (spec §3.1).
type Job struct {
	ID       int64  `db:"id" json:"id"`
	WorkerID string `db:"worker_id" json:"worker_id,omitempty"`

	TranscriptFile string `db:"transcript_file" json:"transcript_file"`
	ProjectPath    string `db:"project_path" json:"project_path"`
	ProjectName    string `db:"project_name" json:"project_name"`

	Status      JobStatus `db:"status" json:"status"`
	Priority    int       `db:"priority" json:"priority"`
	RetryCount  int       `db:"retry_count" json:"retry_count"`
	MaxRetries  int       `db:"max_retries" json:"max_retries"`
	RecoveryUse int       `db:"recovery_use" json:"recovery_attempts"`

	QueuedAt      time.Time  `db:"queued_at" json:"queued_at"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastHeartbeat *time.Time `db:"last_heartbeat" json:"last_heartbeat,omitempty"`

	EstimatedCost float64 `db:"estimated_cost" json:"estimated_cost"`
	ActualCost    float64 `db:"actual_cost" json:"actual_cost"`

	CurrentPhaseIndex int `db:"current_phase_index" json:"current_phase_index"`

	MediaID     *string `db:"media_id" json:"media_id,omitempty"`
	SSTRecordID *string `db:"sst_record_id" json:"sst_record_id,omitempty"`

	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	ErrorTimestamp *time.Time `db:"error_timestamp" json:"error_timestamp,omitempty"`

	DeletedAt *time.Time `db:"deleted_at" json:"-"`

	// Phases is populated by the store when loading a job with its
	// pipeline; it is never written directly to the jobs table.
	Phases []JobPhase `db:"-" json:"phases,omitempty"`
}
