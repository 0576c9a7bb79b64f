// Package services provides the error taxonomy shared by the generation
// pipeline and the package service used by the API layer.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/promoflow/pkg/llm"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
)

var (
	// ErrValidation marks illegal transitions and failed preconditions. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotConfigured marks an operation whose collaborator was not wired.
	ErrNotConfigured = errors.New("not configured")

	// ErrGeneration marks a provider failure surfaced as a stage failure.
	ErrGeneration = llm.ErrGeneration

	// ErrTransport marks a timeout, rate limit or server error from a provider.
	ErrTransport = llm.ErrTransport

	// ErrCancelled is the cooperative cancellation observed at suspension points.
	ErrCancelled = context.Canceled

	// ErrConflict marks an operation that does not apply to the current state.
	ErrConflict = errors.New("conflict")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error. The optional cause stays
// reachable through errors.Is.
func NewValidationError(op, message string, cause error) *ServiceError {
	err := ErrValidation
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrValidation, cause)
	}

	return &ServiceError{
		Op:      op,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Err:     err,
	}
}

// StageError reports the failure of one copywriting stage with its error code
// (PLAN_FAILED, DRAFT_FAILED, ...).
type StageError struct {
	Code  string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s stage failed: %v", e.Code, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, models.ErrInvalidRequest) ||
		errors.Is(err, models.ErrInvalidTransition)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, persistence.ErrPackageNotFound) ||
		errors.Is(err, persistence.ErrArtifactNotFound)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, persistence.ErrPackageAlreadyExists)
}

func IsGenerationError(err error) bool {
	return errors.Is(err, ErrGeneration)
}

func IsTransportError(err error) bool {
	var transportErr *llm.TransportError

	return errors.As(err, &transportErr)
}
