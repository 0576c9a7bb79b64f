package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
)

// ArtifactRepository stores one JSON file per artifact under <root>/artifacts.
type ArtifactRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewArtifactRepository(root string) *ArtifactRepository {
	return &ArtifactRepository{dir: filepath.Join(root, "artifacts")}
}

func (ar *ArtifactRepository) Save(_ context.Context, artifact *models.Artifact) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	err := writeJSON(ar.dir, artifact.ID+".json", artifact)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", artifact.ID, err)
	}

	return nil
}

func (ar *ArtifactRepository) GetByID(_ context.Context, id string) (*models.Artifact, error) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	return ar.load(id)
}

func (ar *ArtifactRepository) ListByWorkflowID(_ context.Context, workflowID string) ([]*models.Artifact, error) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(ar.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact files: %w", err)
	}

	artifacts := make([]*models.Artifact, 0)

	for _, name := range jsonFiles {
		artifact, err := ar.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if artifact.WorkflowID == workflowID {
			artifacts = append(artifacts, artifact)
		}
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})

	return artifacts, nil
}

func (ar *ArtifactRepository) load(id string) (*models.Artifact, error) {
	var artifact models.Artifact

	found, err := readJSON(filepath.Join(ar.dir, id+".json"), &artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", id, err)
	}

	if !found {
		return nil, fmt.Errorf("artifact %s: %w", id, persistence.ErrArtifactNotFound)
	}

	return &artifact, nil
}
