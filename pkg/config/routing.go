package config

import "fmt"

// TierConfig names one LLM cost/capability class and the provider backend
// it resolves to (spec §4.2 "tiers", SPEC_FULL §4.2 "provider binding").
type TierConfig struct {
	Label   string          `yaml:"label" validate:"required"`
	Backend ProviderBinding `yaml:"backend" validate:"required"`
}

// ProviderBinding is the concrete {type, model, api_key_env} a tier
// resolves to at the LLM client layer (SPEC_FULL glossary).
type ProviderBinding struct {
	Type      ProviderType `yaml:"type" validate:"required"`
	Model     string       `yaml:"model" validate:"required"`
	APIKeyEnv string       `yaml:"api_key_env,omitempty"`
	BaseURL   string       `yaml:"base_url,omitempty"`
}

// ProviderType is the kind of remote chat-completion backend a tier talks to.
type ProviderType string

const (
	ProviderOpenAICompatible ProviderType = "openai"
	ProviderAnthropic        ProviderType = "anthropic"
)

// DurationThreshold is one entry of the duration→minimum-tier ladder
// (spec §4.2 "duration_thresholds").
type DurationThreshold struct {
	// MaxMinutes is the inclusive upper bound this threshold covers; a nil
	// value means "no upper bound" (the ∞ entry spec.md describes).
	MaxMinutes *float64 `yaml:"max_minutes,omitempty"`
	TierIndex  int      `yaml:"tier_index"`
}

// EscalationConfig controls whether/how the router escalates tiers in
// response to failure, timeout, or context-too-large (spec §4.2).
type EscalationConfig struct {
	Enabled            bool `yaml:"enabled"`
	OnFailure          bool `yaml:"on_failure"`
	OnTimeout          bool `yaml:"on_timeout"`
	TimeoutSeconds     int  `yaml:"timeout_seconds" validate:"omitempty,min=1"`
	MaxRetriesPerTier  int  `yaml:"max_retries_per_tier" validate:"omitempty,min=1"`
}

// RoutingConfig is the tier router's entire configuration surface
// (spec §4.2, §6).
type RoutingConfig struct {
	Tiers             []TierConfig           `yaml:"tiers" validate:"required,min=1,dive"`
	PhaseBaseTiers    map[string]int         `yaml:"phase_base_tiers" validate:"required"`
	PinnedPhases      map[string]int         `yaml:"pinned_phases,omitempty"`
	DurationThresholds []DurationThreshold   `yaml:"duration_thresholds"`
	Escalation        EscalationConfig       `yaml:"escalation"`
}

// Validate checks internal consistency beyond what struct tags express:
// every phase_base_tiers / pinned_phases entry must reference a real tier
// index, and duration thresholds must be non-decreasing in tier index.
func (c *RoutingConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return NewValidationError("routing", "tiers", fmt.Errorf("at least one tier is required"))
	}
	last := len(c.Tiers) - 1
	checkIdx := func(field string, idx int) error {
		if idx < 0 || idx > last {
			return NewValidationError("routing", field, fmt.Errorf("tier index %d out of range [0,%d]", idx, last))
		}
		return nil
	}
	for phase, idx := range c.PhaseBaseTiers {
		if err := checkIdx("phase_base_tiers."+phase, idx); err != nil {
			return err
		}
	}
	for phase, idx := range c.PinnedPhases {
		if err := checkIdx("pinned_phases."+phase, idx); err != nil {
			return err
		}
	}
	prevTier := -1
	for i, t := range c.DurationThresholds {
		if err := checkIdx(fmt.Sprintf("duration_thresholds[%d]", i), t.TierIndex); err != nil {
			return err
		}
		if t.TierIndex < prevTier {
			return NewValidationError("routing", "duration_thresholds",
				fmt.Errorf("thresholds must be ordered by non-decreasing tier index"))
		}
		prevTier = t.TierIndex
	}
	return nil
}

// LastTierIndex returns the highest valid tier index.
func (c *RoutingConfig) LastTierIndex() int {
	return len(c.Tiers) - 1
}
