package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/artifacts"
	"github.com/animus-labs/basic-cleaning/internal/cleaning"
	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/platform/env"
	"github.com/animus-labs/basic-cleaning/internal/platform/metrics"
	"github.com/animus-labs/basic-cleaning/internal/platform/objectstore"
	"github.com/animus-labs/basic-cleaning/internal/platform/postgres"
	repopg "github.com/animus-labs/basic-cleaning/internal/repo/postgres"
	"github.com/animus-labs/basic-cleaning/internal/runs"
	storageobjectstore "github.com/animus-labs/basic-cleaning/internal/storage/objectstore"
)

const (
	jobType     = "basic_cleaning"
	serviceName = "basic-cleaning"
)

type jobEnv struct {
	ProjectID string
	CacheDir  string
	WorkDir   string
	Timeout   time.Duration
}

func jobEnvFromEnv() (jobEnv, error) {
	timeout, err := env.Duration("ANIMUS_JOB_TIMEOUT", 30*time.Minute)
	if err != nil {
		return jobEnv{}, err
	}
	cfg := jobEnv{
		ProjectID: strings.TrimSpace(env.String("ANIMUS_PROJECT", "default")),
		CacheDir:  strings.TrimSpace(env.String("ANIMUS_ARTIFACT_CACHE_DIR", filepath.Join(os.TempDir(), "animus-artifacts"))),
		WorkDir:   strings.TrimSpace(env.String("ANIMUS_WORK_DIR", ".")),
		Timeout:   timeout,
	}
	if err := cfg.Validate(); err != nil {
		return jobEnv{}, err
	}
	return cfg, nil
}

func (c jobEnv) Validate() error {
	if err := artifacts.ValidateIdent("project", c.ProjectID); err != nil {
		return err
	}
	if c.CacheDir == "" {
		return errors.New("artifact cache dir is required")
	}
	if c.WorkDir == "" {
		return errors.New("work dir is required")
	}
	if c.Timeout < 0 {
		return errors.New("job timeout must not be negative")
	}
	return nil
}

// runJob wires the registry, the object store and run tracking around one
// cleaning run.
func runJob(ctx context.Context, logger *slog.Logger, cfg cleaning.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	configFile := env.String("ANIMUS_CONFIG_FILE", "")
	applied, err := env.LoadDefaultsFile(configFile)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if configFile != "" {
		logger.Info("config defaults loaded", "path", configFile, "applied", applied)
	}

	jobCfg, err := jobEnvFromEnv()
	if err != nil {
		return fmt.Errorf("invalid job config: %w", err)
	}
	metricsCfg, err := metrics.ConfigFromEnv(jobType)
	if err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if jobCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, jobCfg.Timeout)
		defer cancel()
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid object store config: %w", err)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return fmt.Errorf("object store client init failed: %w", err)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = objectstore.CheckBucket(startupCtx, storeClient, storeCfg)
	cancel()
	if err != nil {
		return fmt.Errorf("object store unavailable: %w", err)
	}
	artifactObjectStore, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		return fmt.Errorf("artifact object store init failed: %w", err)
	}

	tracker, err := runs.NewTracker(repopg.NewRunStore(db), jobCfg.ProjectID)
	if err != nil {
		return err
	}
	run, err := tracker.Start(ctx, jobType, cfg.Map())
	if err != nil {
		return err
	}
	logger = logger.With("run_id", run.ID, "project_id", run.ProjectID)
	logger.Info("run started", "job_type", jobType)

	client, err := artifacts.NewClient(artifacts.Options{
		Repo:      repopg.NewArtifactStore(db, serviceName),
		Lineage:   repopg.NewLineageStore(db),
		Store:     artifactObjectStore,
		Bucket:    storeCfg.BucketArtifacts,
		ProjectID: jobCfg.ProjectID,
		CacheDir:  jobCfg.CacheDir,
		RunID:     run.ID,
		Logger:    logger,
	})
	if err != nil {
		return finish(ctx, logger, tracker, run, cleaning.Result{}, err, nil)
	}
	procedure, err := cleaning.New(cleaning.Options{
		Resolver:  artifactResolver{client: client},
		Publisher: artifactPublisher{client: client},
		WorkDir:   jobCfg.WorkDir,
		Logger:    logger,
	})
	if err != nil {
		return finish(ctx, logger, tracker, run, cleaning.Result{}, err, nil)
	}

	pusher := metrics.NewPusher(metricsCfg)
	pusher.Group("project", jobCfg.ProjectID)
	started := time.Now()
	res, runErr := procedure.Run(ctx, cfg)
	recordRun(pusher.Registry(), res, runErr, time.Since(started))
	return finish(ctx, logger, tracker, run, res, runErr, pusher)
}

// finish records the run outcome and pushes metrics. Bookkeeping failures
// are logged; the run error is returned unchanged.
func finish(ctx context.Context, logger *slog.Logger, tracker *runs.Tracker, run domain.JobRun, res cleaning.Result, runErr error, pusher *metrics.Pusher) error {
	bookkeepingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := tracker.Finish(bookkeepingCtx, run, runErr, res.Summary()); err != nil {
		logger.Error("finish run failed", "error", err)
	}
	if err := pusher.Push(bookkeepingCtx); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return runErr
	}
	logger.Info("run succeeded", "output_artifact", res.Published.QualifiedName(), "rows_out", res.RowsOut)
	return nil
}
