package llm

import (
	"context"
	"time"
)

// Role mirrors tarsy's ConversationMessage roles (pkg/agent/llm_client.go),
// trimmed to the roles Cardigan's single-shot phase calls actually use.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a Complete call's conversation.
type Message struct {
	Role    Role
	Content string
}

// Limits bounds a single Complete call (spec §4.3 "limits").
type Limits struct {
	Timeout   time.Duration
	MaxTokens int
}

// Result is the outcome of a successful Complete call (spec §4.3
// "Result").
type Result struct {
	Content      string
	ModelUsed    string
	InputTokens  int
	OutputTokens int
	Cost         float64
	LatencyMS    int64
}

// TierDescriptor resolves a tier to a concrete provider endpoint, model,
// and auth (spec §4.3 "tier_descriptor").
type TierDescriptor struct {
	TierLabel  string
	Type       string // "openai" or "anthropic", matches config.ProviderBinding.Type
	Model      string
	APIKeyEnv  string
	BaseURL    string
}

// SafetyLimits are the run-scoped and static guards Complete enforces
// before and after each call (spec §4.3 "Safety guards"). RunCostSoFar is
// a pointer so a single accumulator can be shared across every call in a
// job's lifetime.
type SafetyLimits struct {
	ModelAllowlist     []string // empty = no allowlist restriction
	MaxCostPer1kTokens float64  // 0 = no ceiling
	RunCostCap         float64  // 0 = no cap
	RunCostSoFar       *float64
}

// Client is the facade every phase call and recovery-analyzer call goes
// through (spec §4.3 "Single async call").
type Client interface {
	Complete(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits, safety SafetyLimits) (*Result, error)
}
