package repo

import (
	"context"

	"github.com/animus-labs/basic-cleaning/internal/domain"
)

type ArtifactVersionFilter struct {
	ProjectID string
	Name      string
	Type      string
	Limit     int
}

// SealFunc receives a draft with its assigned ordinal and returns the row to
// persist, typically with IntegritySHA256 filled in.
type SealFunc func(version domain.ArtifactVersion) (domain.ArtifactVersion, error)

// ArtifactRepository manages published artifact versions.
type ArtifactRepository interface {
	GetVersion(ctx context.Context, projectID, name string, ordinal int64) (domain.ArtifactVersion, error)
	GetLatestVersion(ctx context.Context, projectID, name string) (domain.ArtifactVersion, error)
	ListVersions(ctx context.Context, filter ArtifactVersionFilter) ([]domain.ArtifactVersion, error)

	// PublishVersion assigns the next ordinal for draft.Name and inserts the
	// version. The row, its lineage edge and its audit event commit together
	// or not at all.
	PublishVersion(ctx context.Context, draft domain.ArtifactVersion, seal SealFunc) (domain.ArtifactVersion, error)
}

// RunRepository manages job runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.JobRun) error
	GetRun(ctx context.Context, projectID, id string) (domain.JobRun, error)
	FinishRun(ctx context.Context, projectID, id string, status string, summary domain.Metadata) error
}

// LineageRecorder appends lineage edges outside of a publish transaction.
type LineageRecorder interface {
	RecordUsage(ctx context.Context, version domain.ArtifactVersion, runID string) error
}
