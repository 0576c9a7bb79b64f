package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id, workflowID string) *models.WorkflowRecord {
	return models.NewWorkflowRecord(id, workflowID, "user-1", map[string]any{
		"image_url":          "https://example.com/p.png",
		"background_context": "summer launch",
	}, time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestNewPersistence(t *testing.T) {
	fp := NewPersistence("file:///tmp/promoflow-test")
	assert.Equal(t, "/tmp/promoflow-test", fp.root)

	fp = NewPersistence("/tmp/promoflow-test")
	assert.Equal(t, "/tmp/promoflow-test", fp.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.ErrorIs(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()), os.ErrNotExist)
}

func TestPackageRepository_CreateAndGet(t *testing.T) {
	repo := NewPersistence(t.TempDir()).PackageRepository()

	record := newRecord("pkg-1", "wf-1")
	require.NoError(t, repo.Create(t.Context(), record))

	byID, err := repo.GetByID(t.Context(), "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", byID.WorkflowID)
	assert.Equal(t, models.WorkflowStatusRunning, byID.Status)
	assert.Equal(t, "summer launch", byID.InputData["background_context"])

	byWorkflow, err := repo.GetByWorkflowID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "pkg-1", byWorkflow.ID)

	err = repo.Create(t.Context(), newRecord("pkg-2", "wf-1"))
	assert.ErrorIs(t, err, persistence.ErrPackageAlreadyExists)
}

func TestPackageRepository_NotFound(t *testing.T) {
	repo := NewPersistence(t.TempDir()).PackageRepository()

	_, err := repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsPackageNotFound(err))

	_, err = repo.GetByWorkflowID(t.Context(), "missing")
	assert.True(t, persistence.IsPackageNotFound(err))

	err = repo.UpdateStatus(t.Context(), "missing", models.StatusUpdate{Status: models.WorkflowStatusFailed})
	assert.True(t, persistence.IsPackageNotFound(err))
}

func TestPackageRepository_Updates(t *testing.T) {
	repo := NewPersistence(t.TempDir()).PackageRepository()
	require.NoError(t, repo.Create(t.Context(), newRecord("pkg-1", "wf-1")))

	require.NoError(t, repo.UpdateStatus(t.Context(), "pkg-1", models.StatusUpdate{
		Status:   models.WorkflowStatusRunning,
		Stage:    models.StageAnalysis,
		Progress: &models.Progress{Percentage: 10, CurrentStep: "Analyzing product"},
	}))
	require.NoError(t, repo.UpdateAnalysis(t.Context(), "pkg-1", &models.Analysis{
		ProductName: "Trail Bottle",
		Features:    []string{"insulated"},
	}))
	require.NoError(t, repo.LinkArtifact(t.Context(), "pkg-1", models.ArtifactTypeCopy, "art-1"))
	require.NoError(t, repo.LinkArtifact(t.Context(), "pkg-1", models.ArtifactTypeCopy, "art-2"))
	require.NoError(t, repo.LinkArtifact(t.Context(), "pkg-1", models.ArtifactTypeVideo, "art-3"))
	require.NoError(t, repo.UpdateQAReport(t.Context(), "pkg-1", &models.QAReport{Score: 0.9, Passed: true}))
	require.NoError(t, repo.UpdateApproval(t.Context(), "pkg-1", models.ApprovalStatusApproved))

	message := "video provider down"
	require.NoError(t, repo.UpdateStatus(t.Context(), "pkg-1", models.StatusUpdate{
		Status:       models.WorkflowStatusFailed,
		ErrorMessage: &message,
	}))

	record, err := repo.GetByID(t.Context(), "pkg-1")
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusFailed, record.Status)
	assert.Equal(t, models.StageAnalysis, record.Stage)
	assert.Equal(t, 10, record.Progress.Percentage)
	assert.Equal(t, "Trail Bottle", record.AnalysisData.ProductName)
	assert.Equal(t, []string{"art-1", "art-2"}, record.Artifacts["copy"])
	assert.Equal(t, []string{"art-3"}, record.Artifacts["video"])
	assert.InDelta(t, 0.9, record.QAReport.Score, 0.0001)
	assert.Equal(t, models.ApprovalStatusApproved, record.ApprovalStatus)
	assert.Equal(t, "video provider down", record.ErrorMessage)
	assert.NotNil(t, record.CompletedAt)
}

func TestArtifactRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ArtifactRepository()

	first := &models.Artifact{
		ID:         "art-1",
		WorkflowID: "wf-1",
		Type:       models.ArtifactTypeCopy,
		Content:    "Stay cold for 24h.",
		CreatedAt:  time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	second := &models.Artifact{
		ID:         "art-2",
		WorkflowID: "wf-1",
		Type:       models.ArtifactTypeImage,
		URL:        "https://cdn.example.com/a.png",
		CreatedAt:  time.Date(2025, 5, 1, 12, 1, 0, 0, time.UTC),
	}
	other := &models.Artifact{ID: "art-3", WorkflowID: "wf-2", Type: models.ArtifactTypeImage}

	for _, artifact := range []*models.Artifact{second, first, other} {
		require.NoError(t, repo.Save(t.Context(), artifact))
	}

	loaded, err := repo.GetByID(t.Context(), "art-2")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", loaded.URL)

	list, err := repo.ListByWorkflowID(t.Context(), "wf-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "art-1", list[0].ID)
	assert.Equal(t, "art-2", list[1].ID)

	_, err = repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsArtifactNotFound(err))

	empty, err := NewPersistence(t.TempDir()).ArtifactRepository().ListByWorkflowID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
