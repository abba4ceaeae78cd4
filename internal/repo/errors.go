package repo

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ErrTypeConflict is returned when a new version's type differs from the
// type already registered for the artifact name.
var ErrTypeConflict = errors.New("artifact type conflict")
