package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/platform/auditlog"
	"github.com/animus-labs/basic-cleaning/internal/platform/lineageevent"
	platformpg "github.com/animus-labs/basic-cleaning/internal/platform/postgres"
	"github.com/animus-labs/basic-cleaning/internal/repo"
)

const artifactVersionColumns = `version_id, project_id, name, type, description, ordinal, filename, content_type, object_key, sha256, size_bytes, metadata, created_at, created_by, run_id, integrity_sha256`

type ArtifactStore struct {
	db      TxDB
	service string
	now     func() time.Time
}

// NewArtifactStore returns a store whose audit events are attributed to service.
func NewArtifactStore(db TxDB, service string) *ArtifactStore {
	if db == nil {
		return nil
	}
	return &ArtifactStore{db: db, service: strings.TrimSpace(service), now: time.Now}
}

func (s *ArtifactStore) GetVersion(ctx context.Context, projectID, name string, ordinal int64) (domain.ArtifactVersion, error) {
	if s == nil || s.db == nil {
		return domain.ArtifactVersion{}, fmt.Errorf("artifact store not initialized")
	}
	projectID, name, err := requireProjectAndName(projectID, name)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	if ordinal < 0 {
		return domain.ArtifactVersion{}, fmt.Errorf("ordinal must be >= 0")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactVersionColumns+`
		 FROM artifact_versions
		 WHERE project_id = $1 AND name = $2 AND ordinal = $3`,
		projectID,
		name,
		ordinal,
	)
	return scanArtifactVersion(row)
}

func (s *ArtifactStore) GetLatestVersion(ctx context.Context, projectID, name string) (domain.ArtifactVersion, error) {
	if s == nil || s.db == nil {
		return domain.ArtifactVersion{}, fmt.Errorf("artifact store not initialized")
	}
	projectID, name, err := requireProjectAndName(projectID, name)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactVersionColumns+`
		 FROM artifact_versions
		 WHERE project_id = $1 AND name = $2
		 ORDER BY ordinal DESC
		 LIMIT 1`,
		projectID,
		name,
	)
	return scanArtifactVersion(row)
}

func (s *ArtifactStore) ListVersions(ctx context.Context, filter repo.ArtifactVersionFilter) ([]domain.ArtifactVersion, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("artifact store not initialized")
	}
	query, args, err := buildVersionListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifact versions: %w", err)
	}
	defer rows.Close()

	versions := make([]domain.ArtifactVersion, 0)
	for rows.Next() {
		version, err := scanArtifactVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifact versions: %w", err)
	}
	return versions, nil
}

func (s *ArtifactStore) PublishVersion(ctx context.Context, draft domain.ArtifactVersion, seal repo.SealFunc) (domain.ArtifactVersion, error) {
	if s == nil || s.db == nil {
		return domain.ArtifactVersion{}, fmt.Errorf("artifact store not initialized")
	}
	projectID, name, err := requireProjectAndName(draft.ProjectID, draft.Name)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	draft.ProjectID = projectID
	draft.Name = name
	draft.Type = strings.TrimSpace(draft.Type)
	if draft.Type == "" {
		return domain.ArtifactVersion{}, fmt.Errorf("artifact type is required")
	}
	if strings.TrimSpace(draft.CreatedBy) == "" {
		return domain.ArtifactVersion{}, fmt.Errorf("created by is required")
	}

	var published domain.ArtifactVersion
	err = platformpg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(projectID, name)); err != nil {
			return fmt.Errorf("lock artifact name: %w", err)
		}

		var existingType sql.NullString
		if err := tx.QueryRowContext(
			ctx,
			`SELECT type FROM artifact_versions WHERE project_id = $1 AND name = $2 ORDER BY ordinal DESC LIMIT 1`,
			projectID,
			name,
		).Scan(&existingType); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup artifact type: %w", err)
		}
		if err := checkVersionType(name, existingType, draft.Type); err != nil {
			return err
		}

		var maxOrdinal sql.NullInt64
		if err := tx.QueryRowContext(
			ctx,
			`SELECT MAX(ordinal) FROM artifact_versions WHERE project_id = $1 AND name = $2`,
			projectID,
			name,
		).Scan(&maxOrdinal); err != nil {
			return fmt.Errorf("next artifact ordinal: %w", err)
		}

		version, err := sealDraft(draft, nextOrdinal(maxOrdinal), seal)
		if err != nil {
			return err
		}

		if err := insertArtifactVersion(ctx, tx, version); err != nil {
			return err
		}

		if strings.TrimSpace(version.RunID) != "" {
			if _, err := lineageevent.Insert(ctx, tx, lineageevent.Event{
				OccurredAt:  version.CreatedAt,
				Actor:       version.CreatedBy,
				RunID:       version.RunID,
				SubjectType: lineageevent.NodeJobRun,
				SubjectID:   version.RunID,
				Predicate:   lineageevent.PredicateProduced,
				ObjectType:  lineageevent.NodeArtifactVersion,
				ObjectID:    version.ID,
				Metadata: map[string]any{
					"qualified_name": version.QualifiedName(),
					"sha256":         version.SHA256,
					"size_bytes":     version.SizeBytes,
				},
			}); err != nil {
				return err
			}
		}

		if _, err := auditlog.Insert(ctx, tx, auditlog.Event{
			OccurredAt:   s.now().UTC(),
			Actor:        version.CreatedBy,
			Action:       "artifact_version.publish",
			ResourceType: "artifact_version",
			ResourceID:   version.ID,
			RunID:        version.RunID,
			Service:      s.service,
			Payload: map[string]any{
				"project_id":     version.ProjectID,
				"name":           version.Name,
				"type":           version.Type,
				"ordinal":        version.Ordinal,
				"object_key":     version.ObjectKey,
				"sha256":         version.SHA256,
				"size_bytes":     version.SizeBytes,
				"qualified_name": version.QualifiedName(),
			},
		}); err != nil {
			return err
		}

		published = version
		return nil
	})
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	return published, nil
}

// checkVersionType rejects publishing name under a type other than the one
// its existing versions carry. existing is invalid when name has no versions.
func checkVersionType(name string, existing sql.NullString, requested string) error {
	if !existing.Valid || existing.String == requested {
		return nil
	}
	return fmt.Errorf("%w: %s is registered as %q, cannot publish as %q", repo.ErrTypeConflict, name, existing.String, requested)
}

// nextOrdinal numbers versions from 0.
func nextOrdinal(maxOrdinal sql.NullInt64) int64 {
	if !maxOrdinal.Valid {
		return 0
	}
	return maxOrdinal.Int64 + 1
}

// sealDraft assigns the ordinal and runs seal. The sealed row must keep the
// identity of the draft and carry an integrity hash.
func sealDraft(draft domain.ArtifactVersion, ordinal int64, seal repo.SealFunc) (domain.ArtifactVersion, error) {
	version := draft
	version.Ordinal = ordinal
	version.CreatedAt = normalizeTime(version.CreatedAt)
	if seal != nil {
		sealed, err := seal(version)
		if err != nil {
			return domain.ArtifactVersion{}, err
		}
		version = sealed
	}
	if version.ID != draft.ID || version.Ordinal != ordinal || version.Name != draft.Name || version.ProjectID != draft.ProjectID {
		return domain.ArtifactVersion{}, fmt.Errorf("seal must not change identity fields")
	}
	if err := version.Validate(); err != nil {
		return domain.ArtifactVersion{}, err
	}
	if err := requireIntegrity(version.IntegritySHA256); err != nil {
		return domain.ArtifactVersion{}, err
	}
	return version, nil
}

func insertArtifactVersion(ctx context.Context, db DB, version domain.ArtifactVersion) error {
	metadataJSON, err := encodeMetadata(version.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = db.ExecContext(
		ctx,
		`INSERT INTO artifact_versions (`+artifactVersionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		strings.TrimSpace(version.ID),
		strings.TrimSpace(version.ProjectID),
		strings.TrimSpace(version.Name),
		strings.TrimSpace(version.Type),
		version.Description,
		version.Ordinal,
		strings.TrimSpace(version.Filename),
		strings.TrimSpace(version.ContentType),
		strings.TrimSpace(version.ObjectKey),
		strings.TrimSpace(version.SHA256),
		version.SizeBytes,
		metadataJSON,
		version.CreatedAt.UTC(),
		strings.TrimSpace(version.CreatedBy),
		nullIfEmpty(version.RunID),
		strings.TrimSpace(version.IntegritySHA256),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: artifact version %s/%s:%s already exists", repo.ErrConflict, version.ProjectID, version.Name, version.Alias())
		}
		return fmt.Errorf("insert artifact version: %w", err)
	}
	return nil
}

func scanArtifactVersion(row rowScanner) (domain.ArtifactVersion, error) {
	var version domain.ArtifactVersion
	var metadataJSON []byte
	var runID sql.NullString
	if err := row.Scan(
		&version.ID,
		&version.ProjectID,
		&version.Name,
		&version.Type,
		&version.Description,
		&version.Ordinal,
		&version.Filename,
		&version.ContentType,
		&version.ObjectKey,
		&version.SHA256,
		&version.SizeBytes,
		&metadataJSON,
		&version.CreatedAt,
		&version.CreatedBy,
		&runID,
		&version.IntegritySHA256,
	); err != nil {
		return domain.ArtifactVersion{}, handleNotFound(err)
	}
	if runID.Valid {
		version.RunID = runID.String
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("decode metadata: %w", err)
	}
	version.Metadata = meta
	version.CreatedAt = version.CreatedAt.UTC()
	return version, nil
}

func buildVersionListQuery(filter repo.ArtifactVersionFilter) (string, []any, error) {
	if strings.TrimSpace(filter.ProjectID) == "" {
		return "", nil, fmt.Errorf("project id is required")
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	if strings.TrimSpace(filter.Name) != "" {
		args = append(args, strings.TrimSpace(filter.Name))
		clauses = append(clauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Type) != "" {
		args = append(args, strings.TrimSpace(filter.Type))
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}

	query := `SELECT ` + artifactVersionColumns + ` FROM artifact_versions WHERE ` + strings.Join(clauses, " AND ")
	query += " ORDER BY name ASC, ordinal DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func requireProjectAndName(projectID, name string) (string, string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", "", fmt.Errorf("project id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("artifact name is required")
	}
	return projectID, name, nil
}
