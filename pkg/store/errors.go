package store

import "errors"

// Sentinel errors returned by the store, matched with errors.Is at the
// service layer and translated to HTTP statuses in pkg/api (tarsy's
// pkg/database error-sentinel pattern, generalized from ent's typed
// not-found errors since Cardigan has no generated client to produce them).
var (
	ErrNotFound       = errors.New("store: not found")
	ErrNoJobAvailable = errors.New("store: no pending job available")
	ErrAlreadyClaimed = errors.New("store: job already claimed")
	ErrConflict       = errors.New("store: conflicting state transition")
)
