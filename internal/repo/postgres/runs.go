package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
)

type RunStore struct {
	db  DB
	now func() time.Time
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db, now: time.Now}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.JobRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	configJSON, err := encodeMetadata(run.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO job_runs (
			run_id,
			project_id,
			job_type,
			status,
			config,
			started_at,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ProjectID),
		strings.TrimSpace(run.JobType),
		strings.TrimSpace(run.Status),
		configJSON,
		normalizeTime(run.StartedAt),
		strings.TrimSpace(run.IntegritySHA256),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: run %s already exists", repo.ErrConflict, run.ID)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, projectID, id string) (domain.JobRun, error) {
	if s == nil || s.db == nil {
		return domain.JobRun{}, fmt.Errorf("run store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.JobRun{}, fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.JobRun{}, fmt.Errorf("run id is required")
	}
	var run domain.JobRun
	var configJSON, summaryJSON []byte
	var endedAt sql.NullTime
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, project_id, job_type, status, config, summary, started_at, ended_at, integrity_sha256
		 FROM job_runs
		 WHERE project_id = $1 AND run_id = $2`,
		projectID,
		id,
	)
	if err := row.Scan(&run.ID, &run.ProjectID, &run.JobType, &run.Status, &configJSON, &summaryJSON, &run.StartedAt, &endedAt, &run.IntegritySHA256); err != nil {
		return domain.JobRun{}, handleNotFound(err)
	}
	if endedAt.Valid {
		ended := endedAt.Time.UTC()
		run.EndedAt = &ended
	}
	config, err := decodeMetadata(configJSON)
	if err != nil {
		return domain.JobRun{}, fmt.Errorf("decode config: %w", err)
	}
	summary, err := decodeMetadata(summaryJSON)
	if err != nil {
		return domain.JobRun{}, fmt.Errorf("decode summary: %w", err)
	}
	run.Config = config
	run.Summary = summary
	return run, nil
}

// FinishRun moves a running run to a terminal status. Finishing a run twice
// is a conflict.
func (s *RunStore) FinishRun(ctx context.Context, projectID, id string, status string, summary domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	id = strings.TrimSpace(id)
	if projectID == "" || id == "" {
		return fmt.Errorf("project id and run id are required")
	}
	if !domain.IsTerminalRunStatus(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}
	summaryJSON, err := encodeMetadata(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE job_runs
		 SET status = $3, summary = $4, ended_at = $5
		 WHERE project_id = $1 AND run_id = $2 AND status = $6`,
		projectID,
		id,
		status,
		summaryJSON,
		s.now().UTC(),
		domain.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetRun(ctx, projectID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return fmt.Errorf("finish run: %w", err)
	}
	return fmt.Errorf("%w: run %s is not running", repo.ErrConflict, id)
}
