// Package runs records pipeline step executions in the registry so that
// published artifacts and their inputs can be traced back to the job and
// configuration that produced them.
package runs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
	"github.com/google/uuid"
)

type Tracker struct {
	repo      repo.RunRepository
	projectID string
	now       func() time.Time
	newID     func() string
}

func NewTracker(runs repo.RunRepository, projectID string) (*Tracker, error) {
	if runs == nil {
		return nil, errors.New("run repository is required")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	return &Tracker{repo: runs, projectID: projectID, now: time.Now, newID: uuid.NewString}, nil
}

// Start registers a running job with a snapshot of its configuration.
func (t *Tracker) Start(ctx context.Context, jobType string, config map[string]any) (domain.JobRun, error) {
	if t == nil || t.repo == nil {
		return domain.JobRun{}, errors.New("run tracker not initialized")
	}
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return domain.JobRun{}, errors.New("job type is required")
	}
	snapshot := domain.Metadata(config).Clone()

	run := domain.JobRun{
		ID:        t.newID(),
		ProjectID: t.projectID,
		JobType:   jobType,
		Status:    domain.RunStatusRunning,
		Config:    snapshot,
		StartedAt: t.now().UTC(),
	}
	integrity, err := runIntegritySHA256(run)
	if err != nil {
		return domain.JobRun{}, err
	}
	run.IntegritySHA256 = integrity

	if err := t.repo.CreateRun(ctx, run); err != nil {
		return domain.JobRun{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Finish marks the run succeeded when runErr is nil and failed otherwise.
// The failure message is kept in the summary under "error".
func (t *Tracker) Finish(ctx context.Context, run domain.JobRun, runErr error, summary map[string]any) error {
	if t == nil || t.repo == nil {
		return errors.New("run tracker not initialized")
	}
	status := domain.RunStatusSucceeded
	out := domain.Metadata(summary).Clone()
	if runErr != nil {
		status = domain.RunStatusFailed
		out["error"] = runErr.Error()
	}
	if err := t.repo.FinishRun(ctx, run.ProjectID, run.ID, status, out); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func runIntegritySHA256(run domain.JobRun) (string, error) {
	type integrityInput struct {
		RunID     string          `json:"run_id"`
		ProjectID string          `json:"project_id"`
		JobType   string          `json:"job_type"`
		Config    domain.Metadata `json:"config"`
		StartedAt time.Time       `json:"started_at"`
	}
	blob, err := json.Marshal(integrityInput{
		RunID:     run.ID,
		ProjectID: run.ProjectID,
		JobType:   run.JobType,
		Config:    run.Config,
		StartedAt: run.StartedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
