package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
	store "github.com/animus-labs/basic-cleaning/internal/storage/objectstore"
	"github.com/google/uuid"
)

// ErrChecksumMismatch is returned when downloaded bytes do not match the
// digest recorded for the version.
var ErrChecksumMismatch = errors.New("artifact checksum mismatch")

// Options configures a Client. Repo, Store, Bucket, ProjectID and CacheDir
// are required; Lineage and RunID are optional and enable lineage edges.
type Options struct {
	Repo      repo.ArtifactRepository
	Lineage   repo.LineageRecorder
	Store     store.Store
	Bucket    string
	ProjectID string
	CacheDir  string
	RunID     string
	Actor     string
	Logger    *slog.Logger
}

// Resolved is an input artifact version materialized on local disk.
type Resolved struct {
	Version domain.ArtifactVersion
	Path    string
	Cached  bool
}

// PublishInput describes a new artifact version backed by one local file.
type PublishInput struct {
	Name        string
	Type        string
	Description string
	Path        string
	Metadata    map[string]any
}

// Client resolves and publishes versioned artifacts. The registry lives in
// Postgres, payloads in the artifacts bucket.
type Client struct {
	repo      repo.ArtifactRepository
	lineage   repo.LineageRecorder
	store     store.Store
	bucket    string
	projectID string
	cacheDir  string
	runID     string
	actor     string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Repo == nil {
		return nil, errors.New("artifact repository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("object store is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	projectID := strings.TrimSpace(opts.ProjectID)
	if err := ValidateIdent("project", projectID); err != nil {
		return nil, err
	}
	cacheDir := strings.TrimSpace(opts.CacheDir)
	if cacheDir == "" {
		return nil, errors.New("cache dir is required")
	}
	runID := strings.TrimSpace(opts.RunID)
	actor := strings.TrimSpace(opts.Actor)
	if actor == "" {
		actor = runID
	}
	if actor == "" {
		return nil, errors.New("actor or run id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		repo:      opts.Repo,
		lineage:   opts.Lineage,
		store:     opts.Store,
		bucket:    bucket,
		projectID: projectID,
		cacheDir:  cacheDir,
		runID:     runID,
		actor:     actor,
		logger:    logger.With("component", "artifacts"),
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Resolve looks up qualifiedName and returns a local copy of its file. A
// cached copy is reused when its digest matches the registry.
func (c *Client) Resolve(ctx context.Context, qualifiedName string) (Resolved, error) {
	if c == nil || c.repo == nil || c.store == nil {
		return Resolved{}, errors.New("artifact client not initialized")
	}
	ref, err := ParseRef(qualifiedName, c.projectID)
	if err != nil {
		return Resolved{}, err
	}

	var version domain.ArtifactVersion
	if ref.Latest {
		version, err = c.repo.GetLatestVersion(ctx, ref.ProjectID, ref.Name)
	} else {
		version, err = c.repo.GetVersion(ctx, ref.ProjectID, ref.Name, ref.Ordinal)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Resolved{}, fmt.Errorf("artifact %s: %w", ref, err)
		}
		return Resolved{}, fmt.Errorf("lookup artifact %s: %w", ref, err)
	}

	localPath := filepath.Join(c.cacheDir, version.ProjectID, version.Name, version.Alias(), filepath.Base(version.Filename))
	cached := false
	if sum, _, err := fileSHA256(localPath); err == nil && sum == version.SHA256 {
		cached = true
	} else if err := c.download(ctx, version, localPath); err != nil {
		return Resolved{}, err
	}
	c.logger.Info("artifact resolved",
		"qualified_name", version.QualifiedName(),
		"path", localPath,
		"cached", cached,
		"size_bytes", version.SizeBytes,
	)

	if c.lineage != nil && c.runID != "" {
		if err := c.lineage.RecordUsage(ctx, version, c.runID); err != nil {
			return Resolved{}, fmt.Errorf("record artifact usage: %w", err)
		}
	}
	return Resolved{Version: version, Path: localPath, Cached: cached}, nil
}

func (c *Client) download(ctx context.Context, version domain.ArtifactVersion, localPath string) error {
	reader, _, err := c.store.Get(ctx, c.bucket, version.ObjectKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", version.ObjectKey, err)
	}
	defer reader.Close()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), reader); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download %s: %w", version.ObjectKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if sum := hex.EncodeToString(hasher.Sum(nil)); sum != version.SHA256 {
		return fmt.Errorf("%w: %s want %s got %s", ErrChecksumMismatch, version.QualifiedName(), version.SHA256, sum)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		return fmt.Errorf("move cache file: %w", err)
	}
	return nil
}

// Publish uploads the file and registers it as the next version of
// input.Name. The version is visible only after the registry transaction
// commits; on failure the uploaded object is removed.
func (c *Client) Publish(ctx context.Context, input PublishInput) (domain.ArtifactVersion, error) {
	if c == nil || c.repo == nil || c.store == nil {
		return domain.ArtifactVersion{}, errors.New("artifact client not initialized")
	}
	name := strings.TrimSpace(input.Name)
	if err := ValidateIdent("artifact name", name); err != nil {
		return domain.ArtifactVersion{}, err
	}
	kind := strings.TrimSpace(input.Type)
	if err := ValidateIdent("artifact type", kind); err != nil {
		return domain.ArtifactVersion{}, err
	}
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return domain.ArtifactVersion{}, errors.New("file path is required")
	}
	if err := c.checkPrevious(ctx, name, kind); err != nil {
		return domain.ArtifactVersion{}, err
	}

	sum, size, err := fileSHA256(path)
	if err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("hash %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	filename := filepath.Base(path)
	contentType := contentTypeFor(filename)
	versionID := c.newID()
	objectKey := fmt.Sprintf("%s/%s/%s/%s", c.projectID, name, versionID, filename)

	if err := c.store.Put(ctx, c.bucket, objectKey, f, size, contentType); err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("upload %s: %w", objectKey, err)
	}

	metadata := domain.Metadata(input.Metadata).Clone()
	published, err := c.repo.PublishVersion(ctx, domain.ArtifactVersion{
		ID:          versionID,
		ProjectID:   c.projectID,
		Name:        name,
		Type:        kind,
		Description: input.Description,
		Filename:    filename,
		ContentType: contentType,
		ObjectKey:   objectKey,
		SHA256:      sum,
		SizeBytes:   size,
		Metadata:    metadata,
		CreatedAt:   c.now().UTC(),
		CreatedBy:   c.actor,
		RunID:       c.runID,
	}, sealVersion)
	if err != nil {
		if delErr := c.store.Delete(ctx, c.bucket, objectKey); delErr != nil {
			c.logger.Warn("remove orphaned upload failed", "object_key", objectKey, "error", delErr)
		}
		return domain.ArtifactVersion{}, err
	}

	c.logger.Info("artifact published",
		"qualified_name", published.QualifiedName(),
		"type", published.Type,
		"sha256", published.SHA256,
		"size_bytes", published.SizeBytes,
	)
	return published, nil
}

// checkPrevious fails fast on a type change so nothing is uploaded for a
// publish the registry would refuse. PublishVersion repeats the check under
// the per-name lock.
func (c *Client) checkPrevious(ctx context.Context, name, kind string) error {
	previous, err := c.repo.ListVersions(ctx, repo.ArtifactVersionFilter{
		ProjectID: c.projectID,
		Name:      name,
		Limit:     1,
	})
	if err != nil {
		return fmt.Errorf("list versions of %s: %w", name, err)
	}
	if len(previous) == 0 {
		c.logger.Info("publishing first version", "name", name, "type", kind)
		return nil
	}
	latest := previous[0]
	if latest.Type != kind {
		return fmt.Errorf("%w: %s is registered as %q, cannot publish as %q", repo.ErrTypeConflict, name, latest.Type, kind)
	}
	c.logger.Info("publishing next version",
		"previous_version", latest.QualifiedName(),
		"previous_sha256", latest.SHA256,
	)
	return nil
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".csv" {
		return "text/csv"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
