package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, expands, defaults, and validates the configuration document
// at path (tarsy's config.Initialize pipeline, minus the registry-building
// steps that don't apply here — routing config has no cross-file
// references to resolve).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{File: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{File: path, Err: err}
	}

	expanded := ExpandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadRoutingDocument parses a standalone routing-config YAML fragment, used
// by the control API's PUT /config/routing endpoint (spec §4.9) to validate
// an operator-submitted document against the same schema the router consumes
// before it is swapped into the live Snapshot. The handler does not write the
// document to the store, so it does not survive a restart.
func LoadRoutingDocument(raw []byte) (*RoutingConfig, error) {
	var rc RoutingConfig
	if err := yaml.Unmarshal(ExpandEnv(raw), &rc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return &rc, nil
}

// LoadWorkerDocument parses a standalone worker-config YAML fragment, used
// by PUT /config/worker.
func LoadWorkerDocument(raw []byte) (*WorkerConfig, error) {
	var wc WorkerConfig
	if err := yaml.Unmarshal(ExpandEnv(raw), &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if wc.MaxConcurrentJobs <= 0 {
		return nil, NewValidationError("worker", "max_concurrent_jobs", fmt.Errorf("must be positive"))
	}
	return &wc, nil
}
