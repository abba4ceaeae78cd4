package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
	store "github.com/animus-labs/basic-cleaning/internal/storage/objectstore"
)

type stubArtifactRepo struct {
	versions   []domain.ArtifactVersion
	publishErr error
	published  []domain.ArtifactVersion
	listed     []repo.ArtifactVersionFilter
}

func (s *stubArtifactRepo) GetVersion(ctx context.Context, projectID, name string, ordinal int64) (domain.ArtifactVersion, error) {
	for _, v := range s.versions {
		if v.ProjectID == projectID && v.Name == name && v.Ordinal == ordinal {
			return v, nil
		}
	}
	return domain.ArtifactVersion{}, repo.ErrNotFound
}

func (s *stubArtifactRepo) GetLatestVersion(ctx context.Context, projectID, name string) (domain.ArtifactVersion, error) {
	var latest *domain.ArtifactVersion
	for i, v := range s.versions {
		if v.ProjectID == projectID && v.Name == name && (latest == nil || v.Ordinal > latest.Ordinal) {
			latest = &s.versions[i]
		}
	}
	if latest == nil {
		return domain.ArtifactVersion{}, repo.ErrNotFound
	}
	return *latest, nil
}

func (s *stubArtifactRepo) ListVersions(ctx context.Context, filter repo.ArtifactVersionFilter) ([]domain.ArtifactVersion, error) {
	s.listed = append(s.listed, filter)
	out := make([]domain.ArtifactVersion, 0)
	for _, v := range s.versions {
		if v.ProjectID == filter.ProjectID && (filter.Name == "" || v.Name == filter.Name) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal > out[j].Ordinal })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *stubArtifactRepo) PublishVersion(ctx context.Context, draft domain.ArtifactVersion, seal repo.SealFunc) (domain.ArtifactVersion, error) {
	if s.publishErr != nil {
		return domain.ArtifactVersion{}, s.publishErr
	}
	var next int64
	for _, v := range s.versions {
		if v.ProjectID == draft.ProjectID && v.Name == draft.Name && v.Ordinal >= next {
			next = v.Ordinal + 1
		}
	}
	draft.Ordinal = next
	sealed, err := seal(draft)
	if err != nil {
		return domain.ArtifactVersion{}, err
	}
	s.versions = append(s.versions, sealed)
	s.published = append(s.published, sealed)
	return sealed, nil
}

type stubLineage struct {
	used []string
}

func (s *stubLineage) RecordUsage(ctx context.Context, version domain.ArtifactVersion, runID string) error {
	s.used = append(s.used, version.ID+"->"+runID)
	return nil
}

type memStore struct {
	objects map[string][]byte
	gets    int
	deletes []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, store.ObjectInfo, error) {
	m.gets++
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, store.ObjectInfo{}, store.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), store.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Stat(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return store.ObjectInfo{}, store.ErrObjectNotFound
	}
	return store.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Delete(ctx context.Context, bucket, key string) error {
	m.deletes = append(m.deletes, key)
	delete(m.objects, bucket+"/"+key)
	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestClient(t *testing.T, r *stubArtifactRepo, s *memStore, lineage *stubLineage) *Client {
	t.Helper()
	opts := Options{
		Repo:      r,
		Store:     s,
		Bucket:    "artifacts",
		ProjectID: "nyc_airbnb",
		CacheDir:  t.TempDir(),
		RunID:     "run-1",
	}
	if lineage != nil {
		opts.Lineage = lineage
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	return c
}

func seedSample(r *stubArtifactRepo, s *memStore, ordinal int64, payload []byte) domain.ArtifactVersion {
	v := domain.ArtifactVersion{
		ID:        "av-sample",
		ProjectID: "nyc_airbnb",
		Name:      "sample.csv",
		Type:      "raw_data",
		Ordinal:   ordinal,
		Filename:  "sample.csv",
		ObjectKey: "nyc_airbnb/sample.csv/av-sample/sample.csv",
		SHA256:    digest(payload),
		SizeBytes: int64(len(payload)),
	}
	r.versions = append(r.versions, v)
	s.objects["artifacts/"+v.ObjectKey] = payload
	return v
}

func TestResolveDownloadsThenUsesCache(t *testing.T) {
	r := &stubArtifactRepo{}
	s := newMemStore()
	lineage := &stubLineage{}
	payload := []byte("id,price\n1,50\n")
	seedSample(r, s, 0, payload)
	c := newTestClient(t, r, s, lineage)

	first, err := c.Resolve(context.Background(), "sample.csv:latest")
	if err != nil {
		t.Fatalf("Resolve() err=%v", err)
	}
	if first.Cached {
		t.Fatalf("first resolve must download")
	}
	got, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatalf("ReadFile() err=%v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("local file = %q, want %q", got, payload)
	}
	if filepath.Base(filepath.Dir(first.Path)) != "v0" {
		t.Fatalf("cache path %q should be keyed by version alias", first.Path)
	}

	second, err := c.Resolve(context.Background(), "nyc_airbnb/sample.csv:v0")
	if err != nil {
		t.Fatalf("Resolve() err=%v", err)
	}
	if !second.Cached || s.gets != 1 {
		t.Fatalf("second resolve should hit the cache (cached=%v gets=%d)", second.Cached, s.gets)
	}
	if len(lineage.used) != 2 || lineage.used[0] != "av-sample->run-1" {
		t.Fatalf("lineage usage = %v", lineage.used)
	}
}

func TestResolveUnknownArtifact(t *testing.T) {
	c := newTestClient(t, &stubArtifactRepo{}, newMemStore(), nil)
	_, err := c.Resolve(context.Background(), "missing.csv:latest")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Resolve() err=%v, want ErrNotFound", err)
	}
}

func TestResolveUnqualifiedName(t *testing.T) {
	c := newTestClient(t, &stubArtifactRepo{}, newMemStore(), nil)
	_, err := c.Resolve(context.Background(), "sample.csv")
	if !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("Resolve() err=%v, want ErrInvalidRef", err)
	}
}

func TestResolveChecksumMismatch(t *testing.T) {
	r := &stubArtifactRepo{}
	s := newMemStore()
	v := seedSample(r, s, 0, []byte("id,price\n1,50\n"))
	s.objects["artifacts/"+v.ObjectKey] = []byte("tampered")
	c := newTestClient(t, r, s, nil)

	_, err := c.Resolve(context.Background(), "sample.csv:v0")
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Resolve() err=%v, want ErrChecksumMismatch", err)
	}
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	return path
}

func TestPublishAssignsNextVersion(t *testing.T) {
	r := &stubArtifactRepo{}
	s := newMemStore()
	c := newTestClient(t, r, s, nil)
	payload := []byte("id,price\n1,50\n")
	path := writeTempFile(t, "clean_sample.csv", payload)

	first, err := c.Publish(context.Background(), PublishInput{Name: "clean_sample.csv", Type: "clean_sample", Description: "cleaned", Path: path})
	if err != nil {
		t.Fatalf("Publish() err=%v", err)
	}
	second, err := c.Publish(context.Background(), PublishInput{Name: "clean_sample.csv", Type: "clean_sample", Description: "cleaned", Path: path})
	if err != nil {
		t.Fatalf("Publish() err=%v", err)
	}
	if first.Ordinal != 0 || second.Ordinal != 1 {
		t.Fatalf("ordinals = %d,%d want 0,1", first.Ordinal, second.Ordinal)
	}
	if first.SHA256 != digest(payload) || first.SizeBytes != int64(len(payload)) {
		t.Fatalf("published digest/size = %s/%d", first.SHA256, first.SizeBytes)
	}
	if first.IntegritySHA256 == "" || first.ContentType != "text/csv" {
		t.Fatalf("published version not sealed: %+v", first)
	}
	if first.CreatedBy != "run-1" || first.RunID != "run-1" {
		t.Fatalf("published version actor = %q run = %q", first.CreatedBy, first.RunID)
	}
	if _, ok := s.objects["artifacts/"+first.ObjectKey]; !ok {
		t.Fatalf("object %s not uploaded", first.ObjectKey)
	}
	wantFilter := repo.ArtifactVersionFilter{ProjectID: "nyc_airbnb", Name: "clean_sample.csv", Limit: 1}
	if len(r.listed) != 2 || r.listed[1] != wantFilter {
		t.Fatalf("previous versions lookups = %+v", r.listed)
	}
}

func TestPublishRejectsTypeChangeBeforeUpload(t *testing.T) {
	r := &stubArtifactRepo{}
	s := newMemStore()
	seedSample(r, s, 0, []byte("id\n1\n"))
	c := newTestClient(t, r, s, nil)
	path := writeTempFile(t, "sample.csv", []byte("id\n2\n"))

	_, err := c.Publish(context.Background(), PublishInput{Name: "sample.csv", Type: "clean_sample", Path: path})
	if !errors.Is(err, repo.ErrTypeConflict) {
		t.Fatalf("Publish() err=%v, want ErrTypeConflict", err)
	}
	if len(s.objects) != 1 || len(s.deletes) != 0 || len(r.published) != 0 {
		t.Fatalf("nothing should be uploaded: objects=%d deletes=%v published=%d", len(s.objects), s.deletes, len(r.published))
	}
}

func TestPublishKeepsDescriptionVerbatim(t *testing.T) {
	r := &stubArtifactRepo{}
	c := newTestClient(t, r, newMemStore(), nil)
	path := writeTempFile(t, "clean_sample.csv", []byte("id\n1\n"))

	for _, desc := range []string{"", "  two spaces  "} {
		v, err := c.Publish(context.Background(), PublishInput{Name: "clean_sample.csv", Type: "clean_sample", Description: desc, Path: path})
		if err != nil {
			t.Fatalf("Publish(%q) err=%v", desc, err)
		}
		if v.Description != desc {
			t.Fatalf("description = %q, want %q", v.Description, desc)
		}
	}
}

func TestPublishRemovesUploadOnRegistryFailure(t *testing.T) {
	r := &stubArtifactRepo{publishErr: repo.ErrTypeConflict}
	s := newMemStore()
	c := newTestClient(t, r, s, nil)
	path := writeTempFile(t, "clean_sample.csv", []byte("id\n1\n"))

	_, err := c.Publish(context.Background(), PublishInput{Name: "clean_sample.csv", Type: "clean_sample", Path: path})
	if !errors.Is(err, repo.ErrTypeConflict) {
		t.Fatalf("Publish() err=%v, want ErrTypeConflict", err)
	}
	if len(s.deletes) != 1 || len(s.objects) != 0 {
		t.Fatalf("orphaned upload not removed: deletes=%v objects=%d", s.deletes, len(s.objects))
	}
}

func TestPublishRejectsBadName(t *testing.T) {
	s := newMemStore()
	c := newTestClient(t, &stubArtifactRepo{}, s, nil)
	path := writeTempFile(t, "clean_sample.csv", []byte("id\n1\n"))

	if _, err := c.Publish(context.Background(), PublishInput{Name: "../escape", Type: "clean_sample", Path: path}); err == nil {
		t.Fatalf("Publish() expected error for invalid name")
	}
	if len(s.objects) != 0 {
		t.Fatalf("nothing should be uploaded for an invalid name")
	}
}
