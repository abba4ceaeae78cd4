package artifacts

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/animus-labs/basic-cleaning/internal/domain"
)

// ErrInvalidRef is returned for names that do not follow [project/]name:alias.
var ErrInvalidRef = errors.New("invalid artifact reference")

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// Ref is a parsed qualified name. Latest is set for the "latest" alias,
// otherwise Ordinal holds N from "vN".
type Ref struct {
	ProjectID string
	Name      string
	Latest    bool
	Ordinal   int64
}

func (r Ref) Alias() string {
	if r.Latest {
		return domain.AliasLatest
	}
	return fmt.Sprintf("v%d", r.Ordinal)
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s:%s", r.ProjectID, r.Name, r.Alias())
}

// ParseRef parses [project/]name:alias. A name without an alias is
// unqualified and rejected; the project falls back to defaultProject.
func ParseRef(qualifiedName, defaultProject string) (Ref, error) {
	raw := strings.TrimSpace(qualifiedName)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty name", ErrInvalidRef)
	}
	path, alias, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(alias) == "" {
		return Ref{}, fmt.Errorf("%w: %q is not qualified with a version alias (name:latest or name:vN)", ErrInvalidRef, raw)
	}

	ref := Ref{ProjectID: strings.TrimSpace(defaultProject)}
	name := path
	if project, rest, hasProject := strings.Cut(path, "/"); hasProject {
		ref.ProjectID = project
		name = rest
	}
	ref.Name = name
	if err := ValidateIdent("project", ref.ProjectID); err != nil {
		return Ref{}, fmt.Errorf("%w: %w", ErrInvalidRef, err)
	}
	if err := ValidateIdent("artifact name", ref.Name); err != nil {
		return Ref{}, fmt.Errorf("%w: %w", ErrInvalidRef, err)
	}

	alias = strings.TrimSpace(alias)
	switch {
	case alias == domain.AliasLatest:
		ref.Latest = true
	case strings.HasPrefix(alias, "v"):
		n, err := strconv.ParseInt(alias[1:], 10, 64)
		if err != nil || n < 0 {
			return Ref{}, fmt.Errorf("%w: bad version alias %q", ErrInvalidRef, alias)
		}
		ref.Ordinal = n
	default:
		return Ref{}, fmt.Errorf("%w: unsupported alias %q", ErrInvalidRef, alias)
	}
	return ref, nil
}

// ValidateIdent checks project, artifact name and type identifiers.
func ValidateIdent(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if !identPattern.MatchString(value) {
		return fmt.Errorf("%s %q may only contain letters, digits, '.', '_' and '-'", kind, value)
	}
	return nil
}
