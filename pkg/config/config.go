// Package config loads, validates, and snapshots Cardigan's configuration:
// tier routing, worker pool sizing, safety caps, ingest watcher settings,
// and retention policy. It follows tarsy's pkg/config layout: a YAML
// document, environment-variable expansion, mergo-based defaulting, and
// struct-tag validation, producing an immutable snapshot each job task
// captures at start (spec §9 "snapshot pattern").
package config

import "sync/atomic"

// Config is the umbrella, validated configuration object returned by
// Load and consumed throughout the application.
type Config struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Worker    WorkerConfig    `yaml:"worker"`
	Safety    SafetyConfig    `yaml:"safety"`
	Retention RetentionConfig `yaml:"retention"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`

	// DataDir is the directory holding the sqlite database file and
	// embedded migrations state (not user-editable via the config API).
	DataDir string `yaml:"data_dir"`
}

// Snapshot is an atomically-swappable pointer to the current Config.
// Workers capture *Config at job-start time (via Current) so a mid-job
// config write never produces inconsistent routing decisions within that
// job (spec §9 "Cyclic/back-references").
type Snapshot struct {
	ptr atomic.Pointer[Config]
}

// NewSnapshot wraps an initial configuration.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Current returns the configuration in effect right now. Callers that need
// a stable view across multiple reads (e.g. a job task) should call this
// once and hold the result, not call it repeatedly.
func (s *Snapshot) Current() *Config {
	return s.ptr.Load()
}

// Replace atomically swaps in a new configuration document (spec §5
// "Config reloads are atomic: writers replace the entire config document
// under a lock; readers take a consistent snapshot").
func (s *Snapshot) Replace(cfg *Config) {
	s.ptr.Store(cfg)
}
