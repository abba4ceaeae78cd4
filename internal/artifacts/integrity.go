package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
)

func artifactIntegritySHA256(v any) (string, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

type versionIntegrityInput struct {
	VersionID   string          `json:"version_id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Ordinal     int64           `json:"ordinal"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type,omitempty"`
	ObjectKey   string          `json:"object_key"`
	SHA256      string          `json:"sha256"`
	SizeBytes   int64           `json:"size_bytes"`
	Metadata    domain.Metadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   string          `json:"created_by"`
	RunID       string          `json:"run_id,omitempty"`
}

func sealVersion(v domain.ArtifactVersion) (domain.ArtifactVersion, error) {
	metadata := v.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	integrity, err := artifactIntegritySHA256(versionIntegrityInput{
		VersionID:   v.ID,
		ProjectID:   v.ProjectID,
		Name:        v.Name,
		Type:        v.Type,
		Description: v.Description,
		Ordinal:     v.Ordinal,
		Filename:    v.Filename,
		ContentType: v.ContentType,
		ObjectKey:   v.ObjectKey,
		SHA256:      v.SHA256,
		SizeBytes:   v.SizeBytes,
		Metadata:    metadata,
		CreatedAt:   v.CreatedAt.UTC(),
		CreatedBy:   v.CreatedBy,
		RunID:       v.RunID,
	})
	if err != nil {
		return domain.ArtifactVersion{}, fmt.Errorf("integrity: %w", err)
	}
	v.Metadata = metadata
	v.IntegritySHA256 = integrity
	return v, nil
}

// fileSHA256 returns the hex digest and size of the file at path.
func fileSHA256(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
