package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound indicates no workflow record matches the given identifier.
	ErrPackageNotFound = errors.New("package not found")

	// ErrPackageAlreadyExists indicates a record with the same id or workflow id exists.
	ErrPackageAlreadyExists = errors.New("package already exists")

	// ErrArtifactNotFound indicates no artifact matches the given identifier.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// PackageError wraps repository errors with the operation and record they concern.
type PackageError struct {
	Op  string // Operation being performed (e.g., "GetByID", "UpdateStatus")
	ID  string
	Err error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("%s operation failed for package %s: %v", e.Op, e.ID, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

func NewPackageError(op, id string, err error) *PackageError {
	return &PackageError{Op: op, ID: id, Err: err}
}

// IsPackageNotFound checks if an error indicates a record was not found.
func IsPackageNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound)
}

// IsArtifactNotFound checks if an error indicates an artifact was not found.
func IsArtifactNotFound(err error) bool {
	return errors.Is(err, ErrArtifactNotFound)
}
