package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
)

func TestBuildVersionListQueryRequiresProjectID(t *testing.T) {
	_, _, err := buildVersionListQuery(repo.ArtifactVersionFilter{})
	if err == nil {
		t.Fatalf("expected error for missing project id")
	}
}

func TestBuildVersionListQueryIncludesProjectID(t *testing.T) {
	query, args, err := buildVersionListQuery(repo.ArtifactVersionFilter{ProjectID: "nyc_airbnb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != "nyc_airbnb" {
		t.Fatalf("expected project id as only arg, got %v", args)
	}
	if !strings.Contains(query, "project_id = $1") {
		t.Fatalf("expected project_id predicate in query, got %s", query)
	}
	if strings.Contains(query, "LIMIT") {
		t.Fatalf("unexpected limit in query, got %s", query)
	}
}

func TestBuildVersionListQueryWithNameTypeAndLimit(t *testing.T) {
	query, args, err := buildVersionListQuery(repo.ArtifactVersionFilter{ProjectID: "nyc_airbnb", Name: "sample.csv", Type: "raw_data", Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if !strings.Contains(query, "name = $2") || !strings.Contains(query, "type = $3") {
		t.Fatalf("expected name and type predicates in query, got %s", query)
	}
	if !strings.Contains(query, "LIMIT $4") {
		t.Fatalf("expected limit in query, got %s", query)
	}
}

func TestAdvisoryLockKeyStable(t *testing.T) {
	a := advisoryLockKey("nyc_airbnb", "clean_sample.csv")
	b := advisoryLockKey(" nyc_airbnb ", "clean_sample.csv")
	if a != b {
		t.Fatalf("lock key must ignore surrounding whitespace")
	}
	if a == advisoryLockKey("nyc_airbnbc", "lean_sample.csv") {
		t.Fatalf("lock key must separate project and name")
	}
}

func TestDecodeMetadataEmpty(t *testing.T) {
	meta, err := decodeMetadata(nil)
	if err != nil {
		t.Fatalf("decodeMetadata() err=%v", err)
	}
	if meta == nil || len(meta) != 0 {
		t.Fatalf("decodeMetadata(nil)=%v, want empty", meta)
	}
	meta, err = decodeMetadata([]byte("null"))
	if err != nil || meta == nil {
		t.Fatalf("decodeMetadata(null)=%v err=%v", meta, err)
	}
}

func TestCheckVersionType(t *testing.T) {
	if err := checkVersionType("clean_sample.csv", sql.NullString{}, "clean_sample"); err != nil {
		t.Fatalf("first version must accept any type: %v", err)
	}
	same := sql.NullString{String: "clean_sample", Valid: true}
	if err := checkVersionType("clean_sample.csv", same, "clean_sample"); err != nil {
		t.Fatalf("same type err=%v", err)
	}
	err := checkVersionType("clean_sample.csv", same, "raw_data")
	if !errors.Is(err, repo.ErrTypeConflict) {
		t.Fatalf("type change err=%v, want ErrTypeConflict", err)
	}
}

func TestNextOrdinalStartsAtZero(t *testing.T) {
	if got := nextOrdinal(sql.NullInt64{}); got != 0 {
		t.Fatalf("first ordinal = %d, want 0", got)
	}
	if got := nextOrdinal(sql.NullInt64{Int64: 4, Valid: true}); got != 5 {
		t.Fatalf("next ordinal = %d, want 5", got)
	}
}

func draftVersion() domain.ArtifactVersion {
	return domain.ArtifactVersion{
		ID:        "av-1",
		ProjectID: "nyc_airbnb",
		Name:      "clean_sample.csv",
		Type:      "clean_sample",
		Filename:  "clean_sample.csv",
		ObjectKey: "nyc_airbnb/clean_sample.csv/av-1/clean_sample.csv",
		SHA256:    "abc",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)),
		CreatedBy: "run-1",
	}
}

func sealWith(integrity string) repo.SealFunc {
	return func(v domain.ArtifactVersion) (domain.ArtifactVersion, error) {
		v.IntegritySHA256 = integrity
		return v, nil
	}
}

func TestSealDraftAssignsFirstVersion(t *testing.T) {
	version, err := sealDraft(draftVersion(), nextOrdinal(sql.NullInt64{}), sealWith("deadbeef"))
	if err != nil {
		t.Fatalf("sealDraft() err=%v", err)
	}
	if version.Ordinal != 0 || version.QualifiedName() != "nyc_airbnb/clean_sample.csv:v0" {
		t.Fatalf("first version = %s", version.QualifiedName())
	}
	if version.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at not normalized to UTC: %v", version.CreatedAt)
	}
}

func TestSealDraftGuardsIdentity(t *testing.T) {
	renaming := func(v domain.ArtifactVersion) (domain.ArtifactVersion, error) {
		v.Name = "other.csv"
		v.IntegritySHA256 = "deadbeef"
		return v, nil
	}
	if _, err := sealDraft(draftVersion(), 0, renaming); err == nil {
		t.Fatalf("sealDraft() expected error when seal changes the name")
	}
	renumbering := func(v domain.ArtifactVersion) (domain.ArtifactVersion, error) {
		v.Ordinal = 7
		v.IntegritySHA256 = "deadbeef"
		return v, nil
	}
	if _, err := sealDraft(draftVersion(), 2, renumbering); err == nil {
		t.Fatalf("sealDraft() expected error when seal changes the ordinal")
	}
	if _, err := sealDraft(draftVersion(), 0, sealWith("")); err == nil {
		t.Fatalf("sealDraft() expected error without integrity")
	}
	boom := errors.New("boom")
	failing := func(domain.ArtifactVersion) (domain.ArtifactVersion, error) { return domain.ArtifactVersion{}, boom }
	if _, err := sealDraft(draftVersion(), 0, failing); !errors.Is(err, boom) {
		t.Fatalf("sealDraft() err=%v, want seal error", err)
	}
}
