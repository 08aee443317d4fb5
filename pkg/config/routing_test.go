package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRouting() *RoutingConfig {
	return &RoutingConfig{
		Tiers: []TierConfig{
			{Label: "cheapskate", Backend: ProviderBinding{Type: ProviderOpenAICompatible, Model: "gpt-4o-mini"}},
			{Label: "default", Backend: ProviderBinding{Type: ProviderOpenAICompatible, Model: "gpt-4o"}},
			{Label: "big-brain", Backend: ProviderBinding{Type: ProviderAnthropic, Model: "claude-opus-4"}},
		},
		PhaseBaseTiers: map[string]int{"analyst": 0, "formatter": 0, "seo": 0},
		PinnedPhases:   map[string]int{"manager": 2},
		DurationThresholds: []DurationThreshold{
			{MaxMinutes: floatPtr(15), TierIndex: 0},
			{MaxMinutes: floatPtr(30), TierIndex: 1},
			{TierIndex: 2},
		},
		Escalation: EscalationConfig{Enabled: true, OnFailure: true, OnTimeout: true, TimeoutSeconds: 60, MaxRetriesPerTier: 1},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestRoutingConfigValidate_OK(t *testing.T) {
	require.NoError(t, validRouting().Validate())
}

func TestRoutingConfigValidate_TierIndexOutOfRange(t *testing.T) {
	rc := validRouting()
	rc.PhaseBaseTiers["analyst"] = 99
	err := rc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRoutingConfigValidate_NoTiers(t *testing.T) {
	rc := &RoutingConfig{}
	require.Error(t, rc.Validate())
}

func TestRoutingConfigValidate_ThresholdsOutOfOrder(t *testing.T) {
	rc := validRouting()
	rc.DurationThresholds = []DurationThreshold{
		{MaxMinutes: floatPtr(15), TierIndex: 2},
		{MaxMinutes: floatPtr(30), TierIndex: 0},
	}
	require.Error(t, rc.Validate())
}

func TestLastTierIndex(t *testing.T) {
	rc := validRouting()
	assert.Equal(t, 2, rc.LastTierIndex())
}
