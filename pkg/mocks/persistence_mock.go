package mocks

import (
	"context"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	Packages  *MockPackageRepository
	Artifacts *MockArtifactRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Packages:  &MockPackageRepository{},
		Artifacts: &MockArtifactRepository{},
	}
}

func (m *MockPersistence) PackageRepository() persistence.PackageRepository {
	return m.Packages
}

func (m *MockPersistence) ArtifactRepository() persistence.ArtifactRepository {
	return m.Artifacts
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockPackageRepository is a mock implementation of persistence.PackageRepository.
type MockPackageRepository struct {
	mock.Mock
}

func (m *MockPackageRepository) Create(ctx context.Context, record *models.WorkflowRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockPackageRepository) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	args := m.Called(ctx, id, update)

	return args.Error(0)
}

func (m *MockPackageRepository) LinkArtifact(ctx context.Context, id string, artifactType models.ArtifactType, artifactID string) error {
	args := m.Called(ctx, id, artifactType, artifactID)

	return args.Error(0)
}

func (m *MockPackageRepository) UpdateAnalysis(ctx context.Context, id string, analysis *models.Analysis) error {
	args := m.Called(ctx, id, analysis)

	return args.Error(0)
}

func (m *MockPackageRepository) UpdateQAReport(ctx context.Context, id string, report *models.QAReport) error {
	args := m.Called(ctx, id, report)

	return args.Error(0)
}

func (m *MockPackageRepository) UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus) error {
	args := m.Called(ctx, id, status)

	return args.Error(0)
}

func (m *MockPackageRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRecord), args.Error(1)
}

func (m *MockPackageRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRecord), args.Error(1)
}

// MockArtifactRepository is a mock implementation of persistence.ArtifactRepository.
type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) Save(ctx context.Context, artifact *models.Artifact) error {
	args := m.Called(ctx, artifact)

	return args.Error(0)
}

func (m *MockArtifactRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]*models.Artifact, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Artifact), args.Error(1)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
