package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

// JobRegistry is the subset of WorkerPool a Worker uses to register its
// current job's cancel function for API-triggered cancellation (spec
// §4.5 "Cancellation"), mirroring tarsy's SessionRegistry split.
type JobRegistry interface {
	RegisterJob(jobID int64, cancel context.CancelFunc)
	UnregisterJob(jobID int64)
}

// Worker polls for and processes one job at a time. Grounded on tarsy's
// pkg/queue/worker.go, trimmed of the Slack/WebSocket side channels tarsy
// has that Cardigan's spec does not call for.
type Worker struct {
	id       string
	store    Store
	cfg      func() *config.WorkerConfig
	executor *JobExecutor
	pool     JobRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  int64
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker builds a Worker. cfg is a live accessor so the worker always
// polls with the current configuration snapshot (spec §9 "Global state").
func NewWorker(id string, store Store, cfg func() *config.WorkerConfig, executor *JobExecutor, pool JobRegistry, logger *slog.Logger) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		cfg:          cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
		logger:       logger,
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current job (if any)
// to finish. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports this worker's current status for PoolHealth.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := w.logger.With("worker_id", w.id)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one pending job and runs it to completion (spec
// §4.5 "Worker loop").
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.ClaimNextPendingJob(ctx, w.id)
	if err != nil {
		if errors.Is(err, store.ErrNoJobAvailable) {
			return ErrNoJobsAvailable
		}
		return fmt.Errorf("claim next pending job: %w", err)
	}

	log := w.logger.With("job_id", job.ID, "worker_id", w.id)
	log.Info("job claimed")

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, 0)

	cfg := w.cfg()
	jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	defer cancel()

	// An operator cancel only closes cancelCh; the executor polls it between
	// LLM calls, so a call already in flight is allowed to finish.
	cancelCh := make(chan struct{})
	var cancelOnce sync.Once
	w.pool.RegisterJob(job.ID, func() { cancelOnce.Do(func() { close(cancelCh) }) })
	defer w.pool.UnregisterJob(job.ID)

	cancelled := false
	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	go w.runHeartbeat(heartbeatCtx, job.ID, cfg.HeartbeatInterval)

	err = w.executor.Execute(jobCtx, job, func() bool {
		select {
		case <-cancelCh:
			cancelled = true
			return true
		default:
			return false
		}
	})
	stopHeartbeat()

	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			_ = w.store.FailJob(context.Background(), job.ID, fmt.Sprintf("job timed out after %v", cfg.JobTimeout))
			log.Warn("job timed out")
		} else {
			log.Error("job execution returned an error", "error", err)
		}
	} else if cancelled {
		log.Info("job cancelled")
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("job processing complete")
	return nil
}

func (w *Worker) runHeartbeat(ctx context.Context, jobID int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with symmetric jitter (spec
// §4.5 "[ADDED] Poll interval jitter").
func (w *Worker) pollInterval() time.Duration {
	cfg := w.cfg()
	base, jitter := cfg.PollInterval, cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
