// Package persistence provides the storage abstraction for workflow records and artifacts.
package persistence

import (
	"context"

	"github.com/dukex/promoflow/pkg/models"
)

type Persistence interface {
	PackageRepository() PackageRepository
	ArtifactRepository() ArtifactRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// PackageRepository stores the durable WorkflowRecord of each generation run.
// Lookups of unknown records fail with ErrPackageNotFound.
type PackageRepository interface {
	Create(ctx context.Context, record *models.WorkflowRecord) error
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error
	LinkArtifact(ctx context.Context, id string, artifactType models.ArtifactType, artifactID string) error
	UpdateAnalysis(ctx context.Context, id string, analysis *models.Analysis) error
	UpdateQAReport(ctx context.Context, id string, report *models.QAReport) error
	UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus) error
	GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRecord, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error)
}

// ArtifactRepository stores generated and uploaded assets.
type ArtifactRepository interface {
	Save(ctx context.Context, artifact *models.Artifact) error
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
	ListByWorkflowID(ctx context.Context, workflowID string) ([]*models.Artifact, error)
}
