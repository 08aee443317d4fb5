package queue

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/metrics"
	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// reaperState tracks stale-job reaper metrics (thread-safe), mirroring
// tarsy's orphanState (pkg/queue/orphan.go).
type reaperState struct {
	mu            sync.Mutex
	lastScan      time.Time
	jobsRecovered int
	jobsFailed    int
}

// runReaper periodically scans for jobs whose heartbeat has gone stale
// and resets or fails them (spec §4.7).
func (p *WorkerPool) runReaper(ctx context.Context) {
	interval := p.snapshot.Current().Worker.OrphanDetectionInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.sweepStaleJobs(ctx); err != nil {
				p.logger.Error("stale-job sweep failed", "error", err)
			}
			p.sampleMetrics(ctx)
		}
	}
}

// sampleMetrics refreshes the per-status job gauges and queue depth on the
// same cadence as the reaper scan (SPEC_FULL §4.9 "per-status job
// gauges"); piggybacking on the reaper's ticker avoids a second
// background goroutine for what is, relative to job execution, a cheap
// periodic read.
func (p *WorkerPool) sampleMetrics(ctx context.Context) {
	counts, err := p.store.CountJobsByStatus(ctx)
	if err != nil {
		p.logger.Warn("metrics sample failed", "error", err)
		return
	}
	byStatus := make(map[string]int, len(counts))
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusInProgress, models.JobStatusInvestigating, models.JobStatusCompleted,
		models.JobStatusFailed, models.JobStatusCancelled, models.JobStatusPaused,
	} {
		byStatus[string(status)] = 0
	}
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	metrics.SetJobsByStatus(byStatus)
	metrics.SetQueueDepth(byStatus["pending"])
}

// sweepStaleJobs implements spec §4.7's decision: requeue a stale job
// (retry_count++) if under max_retries, otherwise mark it permanently
// failed.
func (p *WorkerPool) sweepStaleJobs(ctx context.Context) error {
	cfg := p.snapshot.Current().Worker
	stale, err := p.store.GetStaleJobs(ctx, cfg.OrphanThreshold)
	if err != nil {
		return err
	}

	if len(stale) == 0 {
		p.reaper.mu.Lock()
		p.reaper.lastScan = time.Now()
		p.reaper.mu.Unlock()
		return nil
	}

	p.logger.Warn("detected stale jobs", "count", len(stale))

	recovered, failed := 0, 0
	for _, job := range stale {
		requeue := job.RetryCount < job.MaxRetries
		if err := p.store.ResetStuckJob(ctx, job.ID, requeue); err != nil {
			p.logger.Error("failed to reset stale job", "job_id", job.ID, "error", err)
			continue
		}
		if requeue {
			recovered++
			p.logger.Info("stale job requeued", "job_id", job.ID, "retry_count", job.RetryCount+1)
		} else {
			failed++
			p.logger.Warn("stale job exceeded retry budget, marked failed", "job_id", job.ID)
		}
	}

	p.reaper.mu.Lock()
	p.reaper.lastScan = time.Now()
	p.reaper.jobsRecovered += recovered
	p.reaper.jobsFailed += failed
	p.reaper.mu.Unlock()

	return nil
}
