package llm

import "context"

// backend is the raw provider call beneath the safety/resilience layers in
// facade.go. Implementations classify every error into the spec §4.3
// taxonomy before returning it; facade.go never inspects provider-specific
// error types directly.
type backend interface {
	call(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits) (*Result, error)
}
