// Package ingest implements the ingest watcher collaborator of spec §2
// item 11 / SPEC_FULL §4.11: an fsnotify-based directory watcher over the
// queue input directory that debounces incremental writes, fingerprints
// file content, and submits a job in-process once a transcript looks
// settled. Grounded on semspec's DocWatcher
// (processor/source-ingester/watcher.go), trimmed from recursive
// multi-extension document watching to Cardigan's flat transcript-drop
// directory, and retargeted from a hash-cache-only dedup to spec.md's
// IngestRecord state machine {new, queued, ignored, superseded}.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/jobsvc"
)

// recordStatus is spec.md's IngestRecord.status enumeration.
type recordStatus string

const (
	recordNew       recordStatus = "new"
	recordQueued    recordStatus = "queued"
	recordIgnored   recordStatus = "ignored"
	recordSuperseded recordStatus = "superseded"
)

// record is one observed input file (spec §3.1 "IngestRecord
// (collaborator)... core treats this as opaque input metadata" — it
// lives only in the watcher, never in the durable store).
type record struct {
	status       recordStatus
	contentHash  string
}

// Watcher watches the configured input directory for new transcript
// files and submits a job for each one that settles into a stable,
// previously-unseen state.
type Watcher struct {
	cfg      func() config.IngestConfig
	submit   func(ctx context.Context, in jobsvc.SubmitInput) error
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	records map[string]record

	dropped int64
}

// NewWatcher builds a Watcher. cfg is a live accessor so a config write
// (e.g. disabling the watcher) takes effect without a restart. submit is
// called once per settled new/changed file; pkg/jobsvc.Service.Submit
// satisfies this signature when bound with context.Context discarded
// return value.
func NewWatcher(cfg func() config.IngestConfig, submit func(ctx context.Context, in jobsvc.SubmitInput) error, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:     cfg,
		submit:  submit,
		fsw:     fsw,
		logger:  logger,
		pending: make(map[string]time.Time),
		records: make(map[string]record),
	}, nil
}

// Start begins watching the input directory. It is a no-op if ingest is
// disabled in configuration.
func (w *Watcher) Start(ctx context.Context) error {
	cfg := w.cfg()
	if !cfg.Enabled {
		w.logger.Info("ingest watcher disabled, not starting")
		return nil
	}
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		return errors.New("create input directory: " + err.Error())
	}
	if err := w.fsw.Add(cfg.InputDir); err != nil {
		return err
	}

	go w.run(ctx)
	w.logger.Info("ingest watcher started", "input_dir", cfg.InputDir, "debounce", cfg.DebounceDelay)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	debounce := w.cfg().DebounceDelay
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("ingest watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// handleEvent records a touched path for the next debounce flush;
// remove/rename events are ignored since a disappearing input file is
// never a job source (spec §4.11 mentions only "on file-create events").
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush processes every path touched since the last tick: once a file's
// content hash stops changing between ticks it is considered settled and
// is submitted.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.processPath(ctx, path)
	}
}

func (w *Watcher) processPath(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		// File may have been removed between the event and this tick;
		// drop it from pending either way.
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}
	hash := contentHash(content)

	w.mu.Lock()
	prior, known := w.records[path]
	unchanged := known && prior.contentHash == hash
	if !unchanged {
		status := recordNew
		if known && prior.status == recordQueued {
			// The already-submitted version is superseded by this edit;
			// the new content gets its own new/queued lifecycle.
			status = recordSuperseded
		}
		w.records[path] = record{status: status, contentHash: hash}
		w.mu.Unlock()
		return // wait one more tick to confirm the write has settled
	}
	delete(w.pending, path)
	if prior.status == recordQueued {
		w.mu.Unlock()
		return // already submitted this exact content, spec §4.11 "duplicates"
	}
	w.records[path] = record{status: recordQueued, contentHash: hash}
	w.mu.Unlock()

	if err := w.submit(ctx, jobsvc.SubmitInput{
		TranscriptFile: path,
		ProjectName:    projectNameFor(path),
	}); err != nil {
		if errors.Is(err, jobsvc.ErrDuplicateTranscript) {
			w.mu.Lock()
			w.records[path] = record{status: recordIgnored, contentHash: hash}
			w.mu.Unlock()
			w.logger.Info("ingest: duplicate transcript ignored", "path", path)
			return
		}
		w.logger.Error("ingest: submit failed", "path", path, "error", err)
		w.mu.Lock()
		delete(w.records, path) // allow retry on the next settle
		w.mu.Unlock()
		return
	}
	w.logger.Info("ingest: job submitted from watched file", "path", path)
}

// projectNameFor derives a project name from a transcript's base
// filename with its extension stripped (spec §3.1 "project_name").
func projectNameFor(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
