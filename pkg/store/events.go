package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// AppendEvent persists one append-only session event (spec §4.8). data
// may be nil for events with no payload.
func (s *Store) AppendEvent(ctx context.Context, jobID *int64, eventType models.EventType, data map[string]any) (*models.SessionEvent, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	evt := &models.SessionEvent{
		JobID:     jobID,
		Timestamp: now(),
		EventType: eventType,
		DataJSON:  string(raw),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_events (job_id, timestamp, event_type, data)
		VALUES (?, ?, ?, ?)`, evt.JobID, evt.Timestamp, evt.EventType, evt.DataJSON)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	evt.ID = id
	return evt, nil
}

// ListEventsForJob returns a job's event history in chronological order
// (spec §4.9 GET /jobs/{id}/events).
func (s *Store) ListEventsForJob(ctx context.Context, jobID int64, limit int) ([]models.SessionEvent, error) {
	var events []models.SessionEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM session_events WHERE job_id = ? ORDER BY timestamp ASC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for job: %w", err)
	}
	return events, nil
}

// ListRecentEvents returns the most recent system-wide events, newest
// first, for GET /events and as the SSE stream's backfill (spec §4.9).
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]models.SessionEvent, error) {
	var events []models.SessionEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM session_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return events, nil
}

// DeleteEventsOlderThan hard-deletes events past their retention TTL
// (spec §4.10 retention sweep; events have no soft-delete stage since
// they are append-only audit data, not user-facing job records).
func (s *Store) DeleteEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.RowsAffected()
}
