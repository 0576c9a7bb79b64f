package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
)

// PackageRepository stores one JSON file per workflow record under <root>/packages.
type PackageRepository struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewPackageRepository(root string) *PackageRepository {
	return &PackageRepository{
		dir: filepath.Join(root, "packages"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (pr *PackageRepository) Create(ctx context.Context, record *models.WorkflowRecord) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	existing, err := pr.load(record.ID)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	if existing != nil {
		return persistence.NewPackageError("Create", record.ID, persistence.ErrPackageAlreadyExists)
	}

	byWorkflow, err := pr.findByWorkflowID(ctx, record.WorkflowID)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	if byWorkflow != nil {
		return persistence.NewPackageError("Create", record.ID, persistence.ErrPackageAlreadyExists)
	}

	now := pr.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	if record.Artifacts == nil {
		record.Artifacts = make(map[string][]string)
	}

	return pr.save(record)
}

func (pr *PackageRepository) UpdateStatus(_ context.Context, id string, update models.StatusUpdate) error {
	return pr.mutate("UpdateStatus", id, func(record *models.WorkflowRecord, now time.Time) {
		record.Apply(update, now)
	})
}

func (pr *PackageRepository) LinkArtifact(_ context.Context, id string, artifactType models.ArtifactType, artifactID string) error {
	return pr.mutate("LinkArtifact", id, func(record *models.WorkflowRecord, now time.Time) {
		if record.Artifacts == nil {
			record.Artifacts = make(map[string][]string)
		}

		key := string(artifactType)
		record.Artifacts[key] = append(record.Artifacts[key], artifactID)
		record.UpdatedAt = now
	})
}

func (pr *PackageRepository) UpdateAnalysis(_ context.Context, id string, analysis *models.Analysis) error {
	return pr.mutate("UpdateAnalysis", id, func(record *models.WorkflowRecord, now time.Time) {
		record.AnalysisData = analysis
		record.UpdatedAt = now
	})
}

func (pr *PackageRepository) UpdateQAReport(_ context.Context, id string, report *models.QAReport) error {
	return pr.mutate("UpdateQAReport", id, func(record *models.WorkflowRecord, now time.Time) {
		record.QAReport = report
		record.UpdatedAt = now
	})
}

func (pr *PackageRepository) UpdateApproval(_ context.Context, id string, status models.ApprovalStatus) error {
	return pr.mutate("UpdateApproval", id, func(record *models.WorkflowRecord, now time.Time) {
		record.ApprovalStatus = status
		record.UpdatedAt = now
	})
}

func (pr *PackageRepository) GetByID(_ context.Context, id string) (*models.WorkflowRecord, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	record, err := pr.load(id)
	if err != nil {
		return nil, persistence.NewPackageError("GetByID", id, err)
	}

	if record == nil {
		return nil, persistence.NewPackageError("GetByID", id, persistence.ErrPackageNotFound)
	}

	return record, nil
}

func (pr *PackageRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	record, err := pr.findByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, persistence.NewPackageError("GetByWorkflowID", workflowID, err)
	}

	if record == nil {
		return nil, persistence.NewPackageError("GetByWorkflowID", workflowID, persistence.ErrPackageNotFound)
	}

	return record, nil
}

func (pr *PackageRepository) mutate(op, id string, apply func(record *models.WorkflowRecord, now time.Time)) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	record, err := pr.load(id)
	if err != nil {
		return persistence.NewPackageError(op, id, err)
	}

	if record == nil {
		return persistence.NewPackageError(op, id, persistence.ErrPackageNotFound)
	}

	apply(record, pr.now())

	err = pr.save(record)
	if err != nil {
		return persistence.NewPackageError(op, id, err)
	}

	return nil
}

func (pr *PackageRepository) findByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	jsonFiles, err := fs.Glob(os.DirFS(pr.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list package files: %w", err)
	}

	for _, name := range jsonFiles {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, err := pr.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if record != nil && record.WorkflowID == workflowID {
			return record, nil
		}
	}

	return nil, nil
}

func (pr *PackageRepository) load(id string) (*models.WorkflowRecord, error) {
	var record models.WorkflowRecord

	found, err := readJSON(filepath.Join(pr.dir, id+".json"), &record)
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	return &record, nil
}

func (pr *PackageRepository) save(record *models.WorkflowRecord) error {
	return writeJSON(pr.dir, record.ID+".json", record)
}
