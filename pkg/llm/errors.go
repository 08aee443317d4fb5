// Package llm is Cardigan's provider-agnostic LLM call facade (spec §4.3):
// a single Complete call with safety guards enforced before and after the
// call, and a bounded error taxonomy the phase executor and recovery
// analyzer dispatch on. Grounded on tarsy's pkg/agent/llm_client.go
// (provider-agnostic facade shape), generalized from a channel-based
// streaming interface (tarsy calls out to a Python gRPC sidecar) to a
// single-result call against in-process provider SDKs, since Cardigan has
// no sidecar process.
package llm

import "errors"

// Kind is the bounded error taxonomy of spec §4.3.
type Kind string

const (
	KindTransient       Kind = "transient"
	KindPermanent       Kind = "permanent"
	KindSafety          Kind = "safety"
	KindContextTooLarge Kind = "context_too_large"
)

// Safety guard sentinels (spec §4.3 "Safety guards").
var (
	ErrModelNotAllowed  = errors.New("llm: model not in allowlist")
	ErrTokenCostTooHigh = errors.New("llm: cost per 1k tokens exceeds cap")
	ErrCostCapExceeded  = errors.New("llm: run cost cap would be exceeded")
)

// Error wraps an underlying cause with the taxonomy Kind the phase
// executor and recovery analyzer branch on.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// IsKind reports whether err (or something it wraps) carries the given
// taxonomy Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
