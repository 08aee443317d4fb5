// Package queue implements Cardigan's worker pool (spec §4.5): a bounded
// set of concurrent job tasks that claim pending jobs, walk each job's
// phase pipeline in order, invoke recovery on exhausted phases, and emit
// heartbeats, plus the stale-job reaper (spec §4.7). Grounded on tarsy's
// pkg/queue/{pool,worker,orphan,types}.go, retargeted from "alert session"
// to "job" and from Postgres FOR UPDATE SKIP LOCKED to the single-file
// sqlite claim transaction pkg/store.ClaimNextPendingJob implements.
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for worker polling, mirroring tarsy's queue/types.go.
var (
	// ErrNoJobsAvailable indicates no pending job exists right now.
	ErrNoJobsAvailable = errors.New("queue: no jobs available")
	// ErrAtCapacity indicates every worker is already occupied. Nothing in
	// this package returns it: each Worker runs one job at a time and
	// polls again only after that job is done.
	ErrAtCapacity = errors.New("queue: at capacity")
)

// PoolHealth mirrors tarsy's PoolHealth, trimmed to a single-process model
// (no pod_id/DB-reachability split across replicas).
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastReaperScan   time.Time      `json:"last_reaper_scan"`
	JobsRecovered    int            `json:"jobs_recovered"`
	JobsFailedByReap int            `json:"jobs_failed_by_reaper"`
}

// WorkerHealth mirrors tarsy's WorkerHealth.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentJobID      int64     `json:"current_job_id,omitempty"`
	JobsProcessed     int       `json:"jobs_processed"`
	LastActivity      time.Time `json:"last_activity"`
}

// WorkerStatus is a Worker's health-tracking state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)
