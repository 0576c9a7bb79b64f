package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/registry"
)

// Workflows is the live side of package generation: background execution,
// snapshots and cancellation.
type Workflows interface {
	StartAsync(ctx context.Context, req models.GenerationRequest, userID string) (string, error)
	GetStatus(workflowID string) (registry.Snapshot, bool)
	Cancel(workflowID string) bool
}

// PackageDetails is a durable record with its artifacts resolved.
type PackageDetails struct {
	*models.WorkflowRecord

	ArtifactDetails []*models.Artifact `json:"artifact_details"`
}

// WorkflowView combines the live snapshot with the last durable write.
// Either side may be missing: the snapshot once pruned, the record before
// initialization.
type WorkflowView struct {
	WorkflowID string                 `json:"workflow_id"`
	Live       *registry.Snapshot     `json:"live,omitempty"`
	Record     *models.WorkflowRecord `json:"record,omitempty"`
}

// Packages is the entry point of the HTTP layer into package generation.
type Packages struct {
	packages  persistence.PackageRepository
	artifacts persistence.ArtifactRepository
	workflows Workflows
	logger    *slog.Logger
}

func NewPackages(p persistence.Persistence, workflows Workflows, logger *slog.Logger) *Packages {
	return &Packages{
		packages:  p.PackageRepository(),
		artifacts: p.ArtifactRepository(),
		workflows: workflows,
		logger:    logger.With("module", "packages_service"),
	}
}

// Start validates the request and launches its workflow in the background.
func (s *Packages) Start(ctx context.Context, req models.GenerationRequest, userID string) (string, error) {
	err := req.Validate()
	if err != nil {
		return "", NewValidationError("Start", err.Error(), err)
	}

	workflowID, err := s.workflows.StartAsync(ctx, req, userID)
	if errors.Is(err, registry.ErrAlreadyRunning) {
		return "", fmt.Errorf("%w: %w", ErrConflict, err)
	}

	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "Package generation requested", "workflow_id", workflowID, "user_id", userID)

	return workflowID, nil
}

func (s *Packages) GetPackage(ctx context.Context, id string) (*PackageDetails, error) {
	record, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	artifacts, err := s.artifacts.ListByWorkflowID(ctx, record.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts of package %s: %w", id, err)
	}

	return &PackageDetails{WorkflowRecord: record, ArtifactDetails: artifacts}, nil
}

func (s *Packages) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowView, error) {
	view := &WorkflowView{WorkflowID: workflowID}

	if snapshot, ok := s.workflows.GetStatus(workflowID); ok {
		view.Live = &snapshot
	}

	record, err := s.packages.GetByWorkflowID(ctx, workflowID)

	switch {
	case err == nil:
		view.Record = record
	case !persistence.IsPackageNotFound(err):
		return nil, err
	case view.Live == nil:
		return nil, err
	}

	return view, nil
}

// Cancel stops a running workflow. Unknown workflows are not found; finished
// ones are a conflict.
func (s *Packages) Cancel(ctx context.Context, workflowID string) error {
	if s.workflows.Cancel(workflowID) {
		s.logger.InfoContext(ctx, "Workflow cancelled", "workflow_id", workflowID)

		return nil
	}

	if _, ok := s.workflows.GetStatus(workflowID); !ok {
		return persistence.NewPackageError("Cancel", workflowID, persistence.ErrPackageNotFound)
	}

	return fmt.Errorf("workflow %s is not running: %w", workflowID, ErrConflict)
}
