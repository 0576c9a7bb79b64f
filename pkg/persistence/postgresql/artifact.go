package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
)

// ArtifactRepository handles artifact database operations.
type ArtifactRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewArtifactRepository(db *sql.DB, logger *slog.Logger) *ArtifactRepository {
	return &ArtifactRepository{db: db, logger: logger}
}

func (r *ArtifactRepository) Save(ctx context.Context, artifact *models.Artifact) error {
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	metadata, err := marshalNullable(artifact.Metadata, artifact.Metadata == nil)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	query := `
		INSERT INTO artifacts (id, workflow_id, type, url, label, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			type = EXCLUDED.type,
			url = EXCLUDED.url,
			label = EXCLUDED.label,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata
	`

	_, err = r.db.ExecContext(ctx, query,
		artifact.ID, artifact.WorkflowID, string(artifact.Type), artifact.URL, artifact.Label,
		artifact.Content, metadata, artifact.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save artifact", "artifact_id", artifact.ID, "error", err)

		return fmt.Errorf("failed to save artifact %s: %w", artifact.ID, err)
	}

	return nil
}

func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	query := `
		SELECT id, workflow_id, type, url, label, content, metadata, created_at
		FROM artifacts WHERE id = $1
	`

	artifact, err := scanArtifact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", id, persistence.ErrArtifactNotFound)
		}

		return nil, fmt.Errorf("failed to get artifact %s: %w", id, err)
	}

	return artifact, nil
}

func (r *ArtifactRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]*models.Artifact, error) {
	query := `
		SELECT id, workflow_id, type, url, label, content, metadata, created_at
		FROM artifacts WHERE workflow_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]*models.Artifact, 0)

	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (*models.Artifact, error) {
	var (
		artifact     models.Artifact
		artifactType string
		metadata     []byte
	)

	err := row.Scan(&artifact.ID, &artifact.WorkflowID, &artifactType, &artifact.URL, &artifact.Label,
		&artifact.Content, &metadata, &artifact.CreatedAt)
	if err != nil {
		return nil, err
	}

	artifact.Type = models.ArtifactType(artifactType)
	artifact.CreatedAt = artifact.CreatedAt.UTC()

	err = unmarshalNullable(metadata, &artifact.Metadata)
	if err != nil {
		return nil, err
	}

	return &artifact, nil
}
