package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// JobRun records one execution of a pipeline step together with the
// configuration it ran with.
type JobRun struct {
	ID              string
	ProjectID       string
	JobType         string
	Status          string
	Config          Metadata
	Summary         Metadata
	StartedAt       time.Time
	EndedAt         *time.Time
	IntegritySHA256 string
}

func (r JobRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(r.JobType) == "" {
		return errors.New("job type is required")
	}
	if strings.TrimSpace(r.Status) == "" {
		return errors.New("status is required")
	}
	if strings.TrimSpace(r.IntegritySHA256) == "" {
		return errors.New("integrity sha256 is required")
	}
	return nil
}

func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}
