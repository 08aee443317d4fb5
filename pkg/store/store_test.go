package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), Config{Path: ""})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &models.Job{
		TranscriptFile: "episode-12.vtt",
		ProjectPath:    "/media/episode-12",
		ProjectName:    "episode-12",
		MaxRetries:     3,
	}
	created, err := s.CreateJob(ctx, job, models.RequiredPhases)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, models.JobStatusPending, created.Status)
	require.Len(t, created.Phases, 4)

	loaded, err := s.GetJob(ctx, created.ID, false)
	require.NoError(t, err)
	require.Equal(t, created.TranscriptFile, loaded.TranscriptFile)
	require.Len(t, loaded.Phases, 4)
	require.Equal(t, models.PhaseAnalyst, loaded.Phases[0].Name)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), 99999, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimNextPendingJob_NoneAvailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ClaimNextPendingJob(context.Background(), "worker-1")
	require.ErrorIs(t, err, ErrNoJobAvailable)
}

func TestClaimNextPendingJob_PicksHighestPriorityOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "a.vtt", ProjectPath: "/a", ProjectName: "a", Priority: 0, MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)
	high, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "b.vtt", ProjectPath: "/b", ProjectName: "b", Priority: 5, MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)

	claimed, err := s.ClaimNextPendingJob(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, high.ID, claimed.ID)
	require.Equal(t, models.JobStatusInProgress, claimed.Status)
	require.Equal(t, "worker-1", claimed.WorkerID)

	second, err := s.ClaimNextPendingJob(ctx, "worker-2")
	require.NoError(t, err)
	require.Equal(t, low.ID, second.ID)
}

// At-most-one-claim under concurrency (spec §8): N workers racing to claim
// a single pending job must result in exactly one successful claim.
func TestClaimNextPendingJob_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "contested.vtt", ProjectPath: "/c", ProjectName: "c", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)

	const workers = 8
	var wins int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			_, err := s.ClaimNextPendingJob(ctx, workerName(id))
			if err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, wins)
}

func workerName(i int) string {
	return "worker-" + string(rune('a'+i))
}

func TestUpdateHeartbeatAndStaleDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "x.vtt", ProjectPath: "/x", ProjectName: "x", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)
	claimed, err := s.ClaimNextPendingJob(ctx, "worker-1")
	require.NoError(t, err)

	stale, err := s.GetStaleJobs(ctx, -1*time.Second)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, claimed.ID, stale[0].ID)

	require.NoError(t, s.UpdateHeartbeat(ctx, claimed.ID))
	fresh, err := s.GetStaleJobs(ctx, time.Hour)
	require.NoError(t, err)
	require.Empty(t, fresh)
}

func TestResetStuckJob_RequeueAndFail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "y.vtt", ProjectPath: "/y", ProjectName: "y", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)
	claimed, err := s.ClaimNextPendingJob(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, s.ResetStuckJob(ctx, claimed.ID, true))
	reloaded, err := s.GetJob(ctx, claimed.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, reloaded.Status)
	require.Equal(t, 1, reloaded.RetryCount)

	reclaimed, err := s.ClaimNextPendingJob(ctx, "worker-2")
	require.NoError(t, err)
	require.NoError(t, s.ResetStuckJob(ctx, reclaimed.ID, false))
	failed, err := s.GetJob(ctx, reclaimed.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, failed.Status)
}

func TestPhaseLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "z.vtt", ProjectPath: "/z", ProjectName: "z", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)

	phase := job.Phases[0]
	phase.TierIndex = 1
	phase.TierLabel = "default"
	phase.TierReason = "phase_base_tier"
	require.NoError(t, s.StartPhase(ctx, &phase))
	require.NoError(t, s.IncrementPhaseAttempts(ctx, job.ID, phase.Index))

	phase.Model = "gpt-4o"
	phase.Cost = 0.02
	phase.InputTokens = 1000
	phase.OutputTokens = 500
	require.NoError(t, s.CompletePhase(ctx, &phase, "out/analyst_v1.md"))

	phases, err := s.ListPhases(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.PhaseStatusCompleted, phases[0].Status)
	require.Equal(t, "gpt-4o", phases[0].Model)
	require.Equal(t, 1, phases[0].Attempts)
	require.Equal(t, "out/analyst_v1.md", phases[0].DeliverablePath)
}

func TestAppendAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "e.vtt", ProjectPath: "/e", ProjectName: "e", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)

	_, err = s.AppendEvent(ctx, &job.ID, models.EventJobQueued, map[string]any{"priority": 0})
	require.NoError(t, err)
	_, err = s.AppendEvent(ctx, &job.ID, models.EventJobStarted, nil)
	require.NoError(t, err)

	events, err := s.ListEventsForJob(ctx, job.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.EventJobQueued, events[0].EventType)
}

func TestSoftDeleteAndHardDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{TranscriptFile: "d.vtt", ProjectPath: "/d", ProjectName: "d", MaxRetries: 3}, models.RequiredPhases)
	require.NoError(t, err)

	n, err := s.SoftDeleteJobs(ctx, []int64{job.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.GetJob(ctx, job.ID, false)
	require.ErrorIs(t, err, ErrNotFound)

	stillThere, err := s.GetJob(ctx, job.ID, true)
	require.NoError(t, err)
	require.NotNil(t, stillThere.DeletedAt)

	deleted, err := s.HardDeleteExpired(ctx, now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = s.GetJob(ctx, job.ID, true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfigItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetConfigItem(ctx, "routing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutConfigItem(ctx, "routing", "tiers: []"))
	v, err := s.GetConfigItem(ctx, "routing")
	require.NoError(t, err)
	require.Equal(t, "tiers: []", v)

	require.NoError(t, s.PutConfigItem(ctx, "routing", "tiers: [cheap]"))
	v2, err := s.GetConfigItem(ctx, "routing")
	require.NoError(t, err)
	require.Equal(t, "tiers: [cheap]", v2)
}
