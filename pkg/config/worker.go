package config

import "time"

// WorkerConfig controls queue polling, concurrency, and heartbeats
// (spec §6 "Worker"), grounded on tarsy's QueueConfig
// (pkg/config/queue.go).
type WorkerConfig struct {
	// MaxConcurrentJobs bounds the in-flight job count for this process
	// (spec §4.5). Default small (e.g. 3), per spec.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" validate:"required,min=1"`

	PollInterval       time.Duration `yaml:"poll_interval_seconds" validate:"required"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter_seconds"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval_seconds" validate:"required"`

	// OrphanThreshold is how long a job can go without a heartbeat before
	// the reaper considers it stale (spec §4.7 default: 3x heartbeat interval).
	OrphanThreshold         time.Duration `yaml:"orphan_threshold_seconds"`
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval_seconds"`

	// JobTimeout bounds total wall-clock time for one job's pipeline.
	JobTimeout time.Duration `yaml:"job_timeout_seconds"`

	// MaxRecoveryAttempts bounds how many times the recovery analyzer may
	// run against a single job before a further failure is terminal
	// (spec §4.6 step 7 "recovery budget (e.g., 3 per job)").
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts" validate:"required,min=1"`
}

// DefaultWorkerConfig returns the built-in worker defaults (tarsy:
// DefaultQueueConfig).
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		MaxConcurrentJobs:       3,
		PollInterval:            2 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       15 * time.Second,
		OrphanThreshold:         45 * time.Second,
		OrphanDetectionInterval: 30 * time.Second,
		JobTimeout:              30 * time.Minute,
		MaxRecoveryAttempts:     3,
	}
}

// SafetyConfig holds the cost/model guardrails enforced by the LLM client
// (spec §4.3, §6 "Safety").
type SafetyConfig struct {
	RunCostCap        float64  `yaml:"run_cost_cap" validate:"required,gt=0"`
	ModelAllowlist    []string `yaml:"model_allowlist,omitempty"`
	MaxCostPer1kTokens float64 `yaml:"max_cost_per_1k_tokens" validate:"required,gt=0"`
}

// RetentionConfig governs the background janitor (SPEC_FULL §4.10).
type RetentionConfig struct {
	JobTTL          time.Duration `yaml:"job_ttl_hours"`
	EventTTL        time.Duration `yaml:"event_ttl_hours"`
	CleanupInterval time.Duration `yaml:"cleanup_interval_seconds"`
}

// DefaultRetentionConfig mirrors tarsy's cleanup service defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobTTL:          30 * 24 * time.Hour,
		EventTTL:        7 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

// IngestConfig configures the filesystem watcher collaborator
// (spec §6 "Input directory", SPEC_FULL §4.11).
type IngestConfig struct {
	Enabled       bool          `yaml:"enabled"`
	InputDir      string        `yaml:"input_dir"`
	OutputDir     string        `yaml:"output_dir" validate:"required"`
	DebounceDelay time.Duration `yaml:"debounce_delay_seconds"`
}
