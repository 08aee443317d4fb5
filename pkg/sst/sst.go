// Package sst is the minimal seam for the external "SST" collaborator
// spec.md names but never prescribes the shape of: a read-only metadata
// source (e.g. a production tracking sheet) phase prompts may reference
// for additional context (spec §4.4 step 3a "SST context"). Grounded on
// tarsy's narrow-interface collaborator style (pkg/agent's MCP client
// interfaces): Cardigan depends only on this interface, never on a
// concrete client, so the actual record source can be swapped or omitted
// entirely without touching the phase executor.
package sst

import "context"

// Provider looks up external context for a job, keyed by whatever record
// identifier the job carries (models.Job.SSTRecordID).
type Provider interface {
	// Lookup returns a flat set of fields to surface to phase prompts, or
	// an empty map if recordID is unset or unknown.
	Lookup(ctx context.Context, recordID string) (map[string]string, error)
}

// NoopProvider is the default collaborator: no external metadata source
// configured, every lookup returns an empty result (spec §4.4 "if SST is
// unavailable, phases proceed without that context").
type NoopProvider struct{}

func (NoopProvider) Lookup(ctx context.Context, recordID string) (map[string]string, error) {
	return map[string]string{}, nil
}
