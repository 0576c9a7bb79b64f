// Package file provides file-based persistence for workflow records and artifacts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/promoflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	packageRepo  *PackageRepository
	artifactRepo *ArtifactRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		packageRepo:  NewPackageRepository(cleanRoot),
		artifactRepo: NewArtifactRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) PackageRepository() persistence.PackageRepository {
	return fp.packageRepo
}

func (fp *Persistence) ArtifactRepository() persistence.ArtifactRepository {
	return fp.artifactRepo
}

func readJSON(filePath string, target any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, json.Unmarshal(body, target)
}

func writeJSON(dir, name string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so readers never observe a partial record.
	tmp := filepath.Join(dir, "."+name+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return err
	}

	return os.Rename(tmp, filepath.Join(dir, name))
}
