// Package jobsvc implements job creation (spec §4.1 "create_job") as one
// shared code path for both entry points that can create a job: the
// control API's submit endpoint (pkg/api) and the ingest watcher
// (pkg/ingest). Grounded on tarsy's pkg/services/session_service.go,
// which plays the same "one service, two callers" role between tarsy's
// HTTP handler and its webhook-style alert intake.
package jobsvc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

// ErrDuplicateTranscript is returned when a non-terminal job already
// exists for the requested transcript filename and force was not set
// (spec §4.1 "create_job").
var ErrDuplicateTranscript = errors.New("jobsvc: a non-terminal job already exists for this transcript")

// Store is the subset of *store.Store job creation needs.
type Store interface {
	FindActiveJobByTranscript(ctx context.Context, transcriptFile string) (*models.Job, error)
	CreateJob(ctx context.Context, job *models.Job, phases []models.PhaseName) (*models.Job, error)
}

// Service creates jobs on behalf of both the control API and the ingest
// watcher, applying the duplicate-transcript guard and the configured
// optional-phase pipeline uniformly.
type Service struct {
	store    Store
	snapshot *config.Snapshot
	events   *events.Publisher
}

// NewService builds a Service.
func NewService(store Store, snapshot *config.Snapshot, pub *events.Publisher) *Service {
	return &Service{store: store, snapshot: snapshot, events: pub}
}

// SubmitInput is the shape both callers supply (spec §3.1 "Input").
type SubmitInput struct {
	TranscriptFile string
	ProjectName    string
	Priority       int
	Force          bool
}

var mediaIDPattern = regexp.MustCompile(`^([A-Za-z0-9]+)[-_]`)

// Submit validates input, applies the duplicate guard, derives
// project_path and media_id, and creates the job with its initial phase
// pipeline (spec §4.1 "create_job", §3.1 "Linkage").
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Job, error) {
	if in.TranscriptFile == "" {
		return nil, fmt.Errorf("%w: transcript_file is required", ErrValidation)
	}
	if in.ProjectName == "" {
		return nil, fmt.Errorf("%w: project_name is required", ErrValidation)
	}

	if !in.Force {
		existing, err := s.store.FindActiveJobByTranscript(ctx, in.TranscriptFile)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check for duplicate transcript: %w", err)
		}
		if existing != nil {
			return nil, ErrDuplicateTranscript
		}
	}

	cfg := s.snapshot.Current()
	projectPath := filepath.Join(cfg.Ingest.OutputDir, in.ProjectName)

	job := &models.Job{
		TranscriptFile: in.TranscriptFile,
		ProjectPath:    projectPath,
		ProjectName:    in.ProjectName,
		Priority:       in.Priority,
		MaxRetries:     3,
	}
	if m := mediaIDPattern.FindStringSubmatch(filepath.Base(in.TranscriptFile)); m != nil {
		mediaID := m[1]
		job.MediaID = &mediaID
	}

	phases := models.BuildPhaseSequence(cfg.Pipeline.OptionalPhases)
	created, err := s.store.CreateJob(ctx, job, phases)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.events.JobQueued(ctx, created.ID, created.Priority)
	return created, nil
}

// ErrValidation marks a Submit input error, translated to HTTP 422 by
// pkg/api's mapServiceError.
var ErrValidation = errors.New("jobsvc: validation error")
