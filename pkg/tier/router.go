// Package tier implements the pure tier-routing function specified in
// spec §4.2: (phase, transcript_duration_minutes, current_tier_index,
// reason) → tier_identifier. It is deliberately side-effect free — see
// spec §8 "Router purity" — so the worker and phase executor can call it
// freely without coordination, and so it is trivially table-driven-
// testable (spec §9 "Why" note, grounded on tarsy's ChainRegistry/
// LLMProviderRegistry config style in pkg/config/chain.go, generalized
// from "lookup" to "pure decision function").
package tier

import (
	"github.com/codeready-toolchain/cardigan/pkg/config"
)

// Reason is why Select is being asked for a tier.
type Reason string

const (
	// ReasonInitial is the first tier lookup for a phase's first attempt.
	ReasonInitial Reason = "initial"
	// ReasonFailure is an escalation request after a transient/permanent
	// LLM failure.
	ReasonFailure Reason = "failure"
	// ReasonTimeout is an escalation request after a per-call timeout.
	ReasonTimeout Reason = "timeout"
	// ReasonContextTooLarge forces escalation regardless of escalation
	// flags (spec §4.4 step 3f).
	ReasonContextTooLarge Reason = "context_too_large"
	// ReasonExhausted is never passed in; it is returned by Select when
	// escalation would exceed the last tier (spec §4.2 rule 6).
	ReasonExhausted Reason = "exhausted"
)

// Decision is the result of a tier lookup.
type Decision struct {
	TierIndex int
	TierLabel string
	Reason    string
	Exhausted bool
}

// Select implements the six rules of spec §4.2.
//
//   - phase:           the phase name being routed (e.g. "analyst").
//   - durationMinutes: estimated transcript duration; 0 if unknown
//     (spec §4.4 tie-break: "If duration estimation is impossible... use 0").
//   - current:         nil for the initial lookup (rule 2-4); non-nil for
//     an escalation request (rule 5-6).
//   - reason:          ReasonInitial for the first call, or
//     ReasonFailure/ReasonTimeout/ReasonContextTooLarge for escalation.
func Select(rc *config.RoutingConfig, phase string, durationMinutes float64, current *int, reason Reason) Decision {
	// Rule 1: pinned phases ignore everything else.
	if pinned, ok := rc.PinnedPhases[phase]; ok {
		return Decision{TierIndex: pinned, TierLabel: label(rc, pinned), Reason: "pinned"}
	}

	// Rules 5-6: escalation request.
	if current != nil && (reason == ReasonFailure || reason == ReasonTimeout || reason == ReasonContextTooLarge) {
		escalationAllowed := reason == ReasonContextTooLarge ||
			(rc.Escalation.Enabled && ((reason == ReasonFailure && rc.Escalation.OnFailure) ||
				(reason == ReasonTimeout && rc.Escalation.OnTimeout)))
		if !escalationAllowed {
			return Decision{TierIndex: *current, TierLabel: label(rc, *current), Reason: string(reason)}
		}
		next := *current + 1
		if next > rc.LastTierIndex() {
			return Decision{TierIndex: *current, TierLabel: label(rc, *current), Reason: string(ReasonExhausted), Exhausted: true}
		}
		return Decision{TierIndex: next, TierLabel: label(rc, next), Reason: string(reason)}
	}

	// Rules 2-4: initial tier selection.
	base := rc.PhaseBaseTiers[phase]
	minFromDuration, thresholdReason := minTierFromDuration(rc, durationMinutes)

	initial := base
	reasonStr := "phase_base_tier"
	if minFromDuration > base {
		initial = minFromDuration
		reasonStr = thresholdReason
	}
	return Decision{TierIndex: initial, TierLabel: label(rc, initial), Reason: reasonStr}
}

// minTierFromDuration computes the smallest tier_index among thresholds
// whose max_minutes is unbounded or still covers duration_minutes — the
// smallest bucket that still fits (spec §4.2 rule 3).
func minTierFromDuration(rc *config.RoutingConfig, durationMinutes float64) (int, string) {
	best := 0
	reason := "duration_threshold"
	found := false
	for _, t := range rc.DurationThresholds {
		if t.MaxMinutes == nil || *t.MaxMinutes >= durationMinutes {
			if !found || t.TierIndex < best {
				best = t.TierIndex
				found = true
			}
		}
	}
	if !found {
		return 0, "phase_base_tier"
	}
	return best, reason
}

func label(rc *config.RoutingConfig, idx int) string {
	if idx < 0 || idx >= len(rc.Tiers) {
		return ""
	}
	return rc.Tiers[idx].Label
}

// EstimateDurationMinutes estimates transcript duration from word count at
// 150 words/minute (spec §4.2 "duration_thresholds").
func EstimateDurationMinutes(wordCount int) float64 {
	const wordsPerMinute = 150.0
	if wordCount <= 0 {
		return 0
	}
	return float64(wordCount) / wordsPerMinute
}
