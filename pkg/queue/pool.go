package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/cardigan/pkg/config"
)

// WorkerPool manages a fixed set of Workers plus the stale-job reaper
// background loop (spec §4.5, §4.7), grounded on tarsy's
// pkg/queue/pool.go, trimmed to a single process (no pod_id).
type WorkerPool struct {
	store    Store
	snapshot *config.Snapshot
	executor *JobExecutor
	logger   *slog.Logger

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu         sync.RWMutex
	activeJobs map[int64]context.CancelFunc
	started    bool

	reaper reaperState
}

// NewWorkerPool builds a WorkerPool. Call Start to spawn workers.
func NewWorkerPool(store Store, snapshot *config.Snapshot, executor *JobExecutor, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		store:      store,
		snapshot:   snapshot,
		executor:   executor,
		logger:     logger,
		stopCh:     make(chan struct{}),
		activeJobs: make(map[int64]context.CancelFunc),
	}
}

// Start spawns worker_count goroutines (per the current config snapshot)
// plus the reaper's ticking loop. Safe to call only once.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	cfg := p.snapshot.Current().Worker
	p.logger.Info("starting worker pool", "worker_count", cfg.MaxConcurrentJobs)

	for i := 0; i < cfg.MaxConcurrentJobs; i++ {
		id := fmt.Sprintf("worker-%d", i)
		w := NewWorker(id, p.store, p.currentWorkerConfig, p.executor, p, p.logger)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReaper(ctx)
	}()

	p.logger.Info("worker pool started")
	return nil
}

// Stop signals every worker and the reaper to stop, then waits for
// in-flight jobs to finish (graceful shutdown, spec §4.5 "Cancellation").
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped gracefully")
}

// currentWorkerConfig gives Workers a live view of worker settings so a
// config write takes effect for the next poll without restarting workers.
func (p *WorkerPool) currentWorkerConfig() *config.WorkerConfig {
	cfg := p.snapshot.Current().Worker
	return &cfg
}

// RegisterJob implements JobRegistry.
func (p *WorkerPool) RegisterJob(jobID int64, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob implements JobRegistry.
func (p *WorkerPool) UnregisterJob(jobID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob signals cancellation to a running job's worker, returning true
// if it was found active in this process (spec §4.5 "Cancellation", §4.9
// "POST /jobs/:id/cancel"). The worker stops the job between LLM calls; a
// call already in flight is not aborted.
func (p *WorkerPool) CancelJob(jobID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports pool-wide worker and reaper status for GET /health.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == string(WorkerStatusWorking) {
			active++
		}
	}

	p.reaper.mu.Lock()
	lastScan := p.reaper.lastScan
	recovered := p.reaper.jobsRecovered
	failedByReap := p.reaper.jobsFailed
	p.reaper.mu.Unlock()

	queueDepth := 0
	if counts, err := p.store.CountJobsByStatus(ctx); err == nil {
		queueDepth = counts["pending"]
	}

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0,
		ActiveWorkers:    active,
		TotalWorkers:     len(p.workers),
		QueueDepth:       queueDepth,
		WorkerStats:      stats,
		LastReaperScan:   lastScan,
		JobsRecovered:    recovered,
		JobsFailedByReap: failedByReap,
	}
}

func (p *WorkerPool) activeJobIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]int64, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
