// Package cleanup implements the retention sweep (SPEC_FULL §4.10): a
// ticking background janitor that hard-deletes jobs soft-deleted (or
// terminal) past their TTL and prunes old session events. Grounded on
// tarsy's pkg/cleanup/service.go, generalized from "sessions+events" to
// "jobs+events" against Cardigan's own store.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/config"
)

// Store is the subset of *store.Store the retention sweep needs.
type Store interface {
	HardDeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policy. All operations are
// idempotent so running the sweep more than once, or concurrently with
// itself after a slow previous run, is harmless.
type Service struct {
	store    Store
	snapshot *config.Snapshot
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a Service.
func NewService(store Store, snapshot *config.Snapshot, logger *slog.Logger) *Service {
	return &Service{store: store, snapshot: snapshot, logger: logger}
}

// Start launches the background cleanup loop. Safe to call only once.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	cfg := s.snapshot.Current().Retention
	s.logger.Info("cleanup service started", "job_ttl", cfg.JobTTL, "event_ttl", cfg.EventTTL, "interval", cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	interval := s.snapshot.Current().Retention.CleanupInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.hardDeleteExpiredJobs(ctx)
	s.deleteExpiredEvents(ctx)
}

func (s *Service) hardDeleteExpiredJobs(ctx context.Context) {
	cutoff := time.Now().Add(-s.snapshot.Current().Retention.JobTTL)
	count, err := s.store.HardDeleteExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: hard-delete expired jobs failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: hard-deleted expired jobs", "count", count)
	}
}

func (s *Service) deleteExpiredEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.snapshot.Current().Retention.EventTTL)
	count, err := s.store.DeleteEventsOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: delete old events failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: deleted old session events", "count", count)
	}
}
