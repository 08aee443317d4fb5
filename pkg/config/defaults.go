package config

import "time"

// applyDefaults fills in zero-valued optional fields, mirroring tarsy's
// pkg/config/defaults.go pass that runs after YAML parsing and before
// validation.
func applyDefaults(cfg *Config) {
	if cfg.Worker.MaxConcurrentJobs == 0 {
		def := DefaultWorkerConfig()
		cfg.Worker = *def
	}
	if cfg.Retention.CleanupInterval == 0 {
		cfg.Retention = *DefaultRetentionConfig()
	}
	if cfg.Routing.Escalation.TimeoutSeconds == 0 {
		cfg.Routing.Escalation.TimeoutSeconds = 120
	}
	if cfg.Routing.Escalation.MaxRetriesPerTier == 0 {
		cfg.Routing.Escalation.MaxRetriesPerTier = 1
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Ingest.DebounceDelay == 0 {
		cfg.Ingest.DebounceDelay = 3 * time.Second
	}
}
