package config

import "dario.cat/mergo"

// MergeRouting overlays a partial routing document onto the current one,
// so a config-write API call can patch individual fields (e.g. just
// duration_thresholds) without forcing the operator to resubmit the whole
// document. Grounded on tarsy's pkg/config/merge.go use of dario.cat/mergo
// to combine built-in and user-supplied configuration.
func MergeRouting(base *RoutingConfig, overlay *RoutingConfig) (*RoutingConfig, error) {
	merged := *base
	if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// MergeWorker overlays a partial worker document onto the current one.
func MergeWorker(base *WorkerConfig, overlay *WorkerConfig) (*WorkerConfig, error) {
	merged := *base
	if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
		return nil, err
	}
	if merged.MaxConcurrentJobs <= 0 {
		return nil, NewValidationError("worker", "max_concurrent_jobs", ErrValidationFailed)
	}
	return &merged, nil
}
