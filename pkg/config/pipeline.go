package config

// PipelineConfig lists the optional phases appended after the fixed
// required pipeline (analyst, formatter, seo, manager) for every new job
// (spec §3.1 "phases", SPEC_FULL §3 "optional phases"). Kept as plain
// strings rather than pkg/models.PhaseName to avoid a config→models
// import for what is, from this package's point of view, just config data.
type PipelineConfig struct {
	// OptionalPhases names additional phases to run after the manager
	// phase, in order, e.g. ["timestamp", "copy_editor"].
	OptionalPhases []string `yaml:"optional_phases,omitempty"`
}
