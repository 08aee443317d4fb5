package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/cardigan/pkg/api"
	"github.com/codeready-toolchain/cardigan/pkg/cleanup"
	"github.com/codeready-toolchain/cardigan/pkg/config"
	"github.com/codeready-toolchain/cardigan/pkg/events"
	"github.com/codeready-toolchain/cardigan/pkg/ingest"
	"github.com/codeready-toolchain/cardigan/pkg/jobsvc"
	"github.com/codeready-toolchain/cardigan/pkg/llm"
	"github.com/codeready-toolchain/cardigan/pkg/phase"
	"github.com/codeready-toolchain/cardigan/pkg/queue"
	"github.com/codeready-toolchain/cardigan/pkg/recovery"
	"github.com/codeready-toolchain/cardigan/pkg/store"
)

var (
	serveConfigPath string
	serveDataDir    string
	serveAddr       string
	servePromptsDir string
	serveEnvFile    string
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the Cardigan queue worker pool, ingest watcher, and control API",
	Long: `serve loads configuration, opens the embedded sqlite store, and starts
every long-running collaborator: the job worker pool (spec §4.5), the
stale-job reaper (§4.7), the retention janitor (§4.10), the ingest
watcher (§4.11), and the HTTP control API (§4.9). It blocks until
interrupted, then shuts each down gracefully in reverse dependency order.`,
	RunE: runServe,
}

func init() {
	serveCommand.Flags().StringVar(&serveConfigPath, "config", "./config.yaml", "Path to the configuration YAML file")
	serveCommand.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory holding the sqlite database file")
	serveCommand.Flags().StringVar(&serveAddr, "addr", ":8080", "Address the control API listens on")
	serveCommand.Flags().StringVar(&servePromptsDir, "prompts-dir", "", "Directory of phase prompt template overrides (optional)")
	serveCommand.Flags().StringVar(&serveEnvFile, "env-file", ".env", "Path to an optional .env file to load before startup")
	rootCmd.AddCommand(serveCommand)
}

func dbPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "cardigan.db")
}

// poolAdapter narrows *queue.WorkerPool's concrete Health return type
// (*queue.PoolHealth) down to api.WorkerPool's any-typed method, the one
// translation point pkg/api's server.go doc comment calls for so pkg/api
// never needs to import pkg/queue.
type poolAdapter struct {
	pool *queue.WorkerPool
}

func (a poolAdapter) Health(ctx context.Context) any { return a.pool.Health(ctx) }
func (a poolAdapter) CancelJob(jobID int64) bool     { return a.pool.CancelJob(jobID) }

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(serveEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", serveEnvFile, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snapshot := config.NewSnapshot(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(serveDataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.NewStore(ctx, store.Config{Path: dbPath(serveDataDir)})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	broadcaster := events.NewBroadcaster()
	publisher := events.NewPublisher(db, broadcaster, logger)

	llmFacade := llm.NewFacade(logger, publisher, nil)
	prompts := phase.NewPromptStore(servePromptsDir)
	runner := phase.NewRunner(db, llmFacade, prompts, publisher, logger)
	analyzer := recovery.NewAnalyzer(db, llmFacade, publisher, logger)
	executor := queue.NewJobExecutor(db, runner, analyzer, publisher, nil, snapshot, logger)

	pool := queue.NewWorkerPool(db, snapshot, executor, logger)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Stop()

	jobs := jobsvc.NewService(db, snapshot, publisher)

	watcher, err := ingest.NewWatcher(
		func() config.IngestConfig { return snapshot.Current().Ingest },
		func(ctx context.Context, in jobsvc.SubmitInput) error {
			_, err := jobs.Submit(ctx, in)
			return err
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("build ingest watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start ingest watcher: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	janitor := cleanup.NewService(db, snapshot, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	srv := api.NewServer(db, jobs, poolAdapter{pool: pool}, broadcaster, snapshot)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", serveAddr)
		if err := srv.Start(serveAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("control API failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control API shutdown error", "error", err)
	}
	return nil
}
