package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AliasLatest resolves to the highest ordinal of an artifact name.
const AliasLatest = "latest"

// ArtifactVersion is an immutable, published version of a named artifact.
// Versions of one name share a type and are numbered v0, v1, ...
type ArtifactVersion struct {
	ID              string
	ProjectID       string
	Name            string
	Type            string
	Description     string
	Ordinal         int64
	Filename        string
	ContentType     string
	ObjectKey       string
	SHA256          string
	SizeBytes       int64
	Metadata        Metadata
	CreatedAt       time.Time
	CreatedBy       string
	RunID           string
	IntegritySHA256 string
}

// Alias returns the version alias, e.g. "v3".
func (v ArtifactVersion) Alias() string {
	return fmt.Sprintf("v%d", v.Ordinal)
}

// QualifiedName returns project/name:vN, which resolves to exactly this version.
func (v ArtifactVersion) QualifiedName() string {
	return fmt.Sprintf("%s/%s:%s", v.ProjectID, v.Name, v.Alias())
}

func (v ArtifactVersion) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return errors.New("artifact version id is required")
	}
	if strings.TrimSpace(v.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return errors.New("artifact name is required")
	}
	if strings.TrimSpace(v.Type) == "" {
		return errors.New("artifact type is required")
	}
	if v.Ordinal < 0 {
		return errors.New("ordinal must be >= 0")
	}
	if strings.TrimSpace(v.Filename) == "" {
		return errors.New("filename is required")
	}
	if strings.TrimSpace(v.ObjectKey) == "" {
		return errors.New("object key is required")
	}
	if strings.TrimSpace(v.SHA256) == "" {
		return errors.New("sha256 is required")
	}
	return nil
}
