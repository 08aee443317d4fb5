package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetConfigItem returns a persisted config document (routing or worker
// YAML, stored as untyped text) by key. Returns ErrNotFound if never
// written. The service does not call it at startup; the live config comes
// from the config file.
func (s *Store) GetConfigItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM config_items WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get config item %s: %w", key, err)
	}
	return value, nil
}

// PutConfigItem upserts a config document by key. The control API's
// PUT /config/{routing,worker} handlers (spec §4.9) do not call it: they
// only swap the live config.Snapshot.
func (s *Store) PutConfigItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now())
	if err != nil {
		return fmt.Errorf("put config item %s: %w", key, err)
	}
	return nil
}
