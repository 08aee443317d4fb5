package tier

import (
	"testing"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func testRouting() *config.RoutingConfig {
	return &config.RoutingConfig{
		Tiers: []config.TierConfig{
			{Label: "cheapskate", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o-mini"}},
			{Label: "default", Backend: config.ProviderBinding{Type: config.ProviderOpenAICompatible, Model: "gpt-4o"}},
			{Label: "big-brain", Backend: config.ProviderBinding{Type: config.ProviderAnthropic, Model: "claude-opus-4"}},
		},
		PhaseBaseTiers: map[string]int{"analyst": 0, "formatter": 0, "seo": 0},
		PinnedPhases:   map[string]int{"manager": 2},
		DurationThresholds: []config.DurationThreshold{
			{MaxMinutes: floatPtr(15), TierIndex: 0},
			{MaxMinutes: floatPtr(30), TierIndex: 1},
			{TierIndex: 2},
		},
		Escalation: config.EscalationConfig{Enabled: true, OnFailure: true, OnTimeout: true, TimeoutSeconds: 60, MaxRetriesPerTier: 1},
	}
}

func TestSelect_PinnedPhaseIgnoresEverything(t *testing.T) {
	rc := testRouting()
	d := Select(rc, "manager", 45, nil, ReasonInitial)
	assert.Equal(t, 2, d.TierIndex)
	assert.Equal(t, "big-brain", d.TierLabel)
	assert.Equal(t, "pinned", d.Reason)
}

// spec §8 scenario 2: a 45-minute transcript with thresholds
// [(15,0),(30,1),(inf,2)] routes the analyst phase to tier 2 even though
// its phase_base_tier is 0.
func TestSelect_DurationEscalatesAboveBaseTier(t *testing.T) {
	rc := testRouting()
	d := Select(rc, "analyst", 45, nil, ReasonInitial)
	assert.Equal(t, 2, d.TierIndex)
	assert.Equal(t, "duration_threshold", d.Reason)
}

func TestSelect_ShortDurationUsesBaseTier(t *testing.T) {
	rc := testRouting()
	d := Select(rc, "analyst", 5, nil, ReasonInitial)
	assert.Equal(t, 0, d.TierIndex)
	assert.Equal(t, "phase_base_tier", d.Reason)
}

func TestSelect_EscalationOnFailureBumpsOneTier(t *testing.T) {
	rc := testRouting()
	cur := 0
	d := Select(rc, "analyst", 5, &cur, ReasonFailure)
	assert.Equal(t, 1, d.TierIndex)
	assert.False(t, d.Exhausted)
}

func TestSelect_EscalationAtLastTierIsExhausted(t *testing.T) {
	rc := testRouting()
	cur := rc.LastTierIndex()
	d := Select(rc, "analyst", 5, &cur, ReasonFailure)
	assert.True(t, d.Exhausted)
	assert.Equal(t, cur, d.TierIndex)
	assert.Equal(t, string(ReasonExhausted), d.Reason)
}

func TestSelect_EscalationDisabledStaysPut(t *testing.T) {
	rc := testRouting()
	rc.Escalation.Enabled = false
	cur := 0
	d := Select(rc, "analyst", 5, &cur, ReasonFailure)
	assert.Equal(t, 0, d.TierIndex)
	assert.False(t, d.Exhausted)
}

func TestSelect_ContextTooLargeEscalatesRegardlessOfFlags(t *testing.T) {
	rc := testRouting()
	rc.Escalation.Enabled = false
	cur := 0
	d := Select(rc, "analyst", 5, &cur, ReasonContextTooLarge)
	require.Equal(t, 1, d.TierIndex)
}

func TestSelect_OnFailureDisabledButOnTimeoutEnabled(t *testing.T) {
	rc := testRouting()
	rc.Escalation.OnFailure = false
	cur := 0
	d := Select(rc, "analyst", 5, &cur, ReasonFailure)
	assert.Equal(t, 0, d.TierIndex)

	d2 := Select(rc, "analyst", 5, &cur, ReasonTimeout)
	assert.Equal(t, 1, d2.TierIndex)
}

// Router purity (spec §8): repeated calls with identical inputs return
// identical decisions, and Select never mutates the RoutingConfig.
func TestSelect_IsPure(t *testing.T) {
	rc := testRouting()
	snapshot := *rc
	cur := 0
	d1 := Select(rc, "analyst", 20, &cur, ReasonFailure)
	d2 := Select(rc, "analyst", 20, &cur, ReasonFailure)
	assert.Equal(t, d1, d2)
	assert.Equal(t, snapshot.PhaseBaseTiers, rc.PhaseBaseTiers)
}

func TestEstimateDurationMinutes(t *testing.T) {
	assert.Equal(t, 0.0, EstimateDurationMinutes(0))
	assert.InDelta(t, 10.0, EstimateDurationMinutes(1500), 0.01)
}
