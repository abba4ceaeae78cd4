package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/platform/lineageevent"
)

type LineageStore struct {
	db lineageevent.QueryRower
}

func NewLineageStore(db lineageevent.QueryRower) *LineageStore {
	if db == nil {
		return nil
	}
	return &LineageStore{db: db}
}

// RecordUsage writes artifact_version --used_by--> job_run.
func (s *LineageStore) RecordUsage(ctx context.Context, version domain.ArtifactVersion, runID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("lineage store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := lineageevent.Insert(ctx, s.db, lineageevent.Event{
		Actor:       runID,
		RunID:       runID,
		SubjectType: lineageevent.NodeArtifactVersion,
		SubjectID:   version.ID,
		Predicate:   lineageevent.PredicateUsedBy,
		ObjectType:  lineageevent.NodeJobRun,
		ObjectID:    runID,
		Metadata: map[string]any{
			"qualified_name": version.QualifiedName(),
			"sha256":         version.SHA256,
		},
	})
	return err
}
