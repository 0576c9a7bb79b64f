package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const selectPackageSQL = `
	SELECT id, workflow_id, user_id, status, stage, progress_percentage, progress_step,
		input_data, analysis_data, artifacts, approval_status, qa_report, error_message,
		created_at, updated_at, completed_at
	FROM packages
`

// PackageRepository handles workflow record database operations.
type PackageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPackageRepository(db *sql.DB, logger *slog.Logger) *PackageRepository {
	return &PackageRepository{db: db, logger: logger}
}

func (r *PackageRepository) Create(ctx context.Context, record *models.WorkflowRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	if record.Artifacts == nil {
		record.Artifacts = make(map[string][]string)
	}

	inputJSON, err := marshalNullable(record.InputData, record.InputData == nil)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	analysisJSON, err := marshalNullable(record.AnalysisData, record.AnalysisData == nil)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	qaJSON, err := marshalNullable(record.QAReport, record.QAReport == nil)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	artifactsJSON, err := marshalNullable(record.Artifacts, false)
	if err != nil {
		return persistence.NewPackageError("Create", record.ID, err)
	}

	query := `
		INSERT INTO packages (id, workflow_id, user_id, status, stage, progress_percentage, progress_step,
			input_data, analysis_data, artifacts, approval_status, qa_report, error_message,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.WorkflowID, record.UserID, string(record.Status), string(record.Stage),
		record.Progress.Percentage, record.Progress.CurrentStep,
		inputJSON, analysisJSON, artifactsJSON, string(record.ApprovalStatus), qaJSON, record.ErrorMessage,
		record.CreatedAt, record.UpdatedAt, record.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewPackageError("Create", record.ID, persistence.ErrPackageAlreadyExists)
		}

		r.logger.ErrorContext(ctx, "Failed to create package", "package_id", record.ID, "error", err)

		return persistence.NewPackageError("Create", record.ID, err)
	}

	return nil
}

func (r *PackageRepository) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	var (
		percentage sql.NullInt64
		step       sql.NullString
		message    sql.NullString
	)

	if update.Progress != nil {
		percentage = sql.NullInt64{Int64: int64(update.Progress.Percentage), Valid: true}
		step = sql.NullString{String: update.Progress.CurrentStep, Valid: true}
	}

	if update.ErrorMessage != nil {
		message = sql.NullString{String: *update.ErrorMessage, Valid: true}
	}

	query := `
		UPDATE packages SET
			status = COALESCE(NULLIF($2, ''), status),
			stage = COALESCE(NULLIF($3, ''), stage),
			progress_percentage = COALESCE($4, progress_percentage),
			progress_step = COALESCE($5, progress_step),
			error_message = COALESCE($6, error_message),
			updated_at = $7,
			completed_at = CASE
				WHEN COALESCE(NULLIF($2, ''), status) IN ('completed', 'failed', 'cancelled')
				THEN COALESCE(completed_at, $7)
				ELSE completed_at
			END
		WHERE id = $1
	`

	return r.exec(ctx, "UpdateStatus", id, query,
		id, string(update.Status), string(update.Stage), percentage, step, message, time.Now().UTC())
}

func (r *PackageRepository) LinkArtifact(ctx context.Context, id string, artifactType models.ArtifactType, artifactID string) error {
	query := `
		UPDATE packages SET
			artifacts = jsonb_set(
				artifacts,
				ARRAY[$2::text],
				COALESCE(artifacts -> $2::text, '[]'::jsonb) || to_jsonb($3::text)
			),
			updated_at = $4
		WHERE id = $1
	`

	return r.exec(ctx, "LinkArtifact", id, query, id, string(artifactType), artifactID, time.Now().UTC())
}

func (r *PackageRepository) UpdateAnalysis(ctx context.Context, id string, analysis *models.Analysis) error {
	data, err := marshalNullable(analysis, analysis == nil)
	if err != nil {
		return persistence.NewPackageError("UpdateAnalysis", id, err)
	}

	return r.exec(ctx, "UpdateAnalysis", id,
		"UPDATE packages SET analysis_data = $2, updated_at = $3 WHERE id = $1",
		id, data, time.Now().UTC())
}

func (r *PackageRepository) UpdateQAReport(ctx context.Context, id string, report *models.QAReport) error {
	data, err := marshalNullable(report, report == nil)
	if err != nil {
		return persistence.NewPackageError("UpdateQAReport", id, err)
	}

	return r.exec(ctx, "UpdateQAReport", id,
		"UPDATE packages SET qa_report = $2, updated_at = $3 WHERE id = $1",
		id, data, time.Now().UTC())
}

func (r *PackageRepository) UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus) error {
	return r.exec(ctx, "UpdateApproval", id,
		"UPDATE packages SET approval_status = $2, updated_at = $3 WHERE id = $1",
		id, string(status), time.Now().UTC())
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, selectPackageSQL+" WHERE id = $1", id))
	if err != nil {
		return nil, persistence.NewPackageError("GetByID", id, err)
	}

	return record, nil
}

func (r *PackageRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, selectPackageSQL+" WHERE workflow_id = $1", workflowID))
	if err != nil {
		return nil, persistence.NewPackageError("GetByWorkflowID", workflowID, err)
	}

	return record, nil
}

func (r *PackageRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update package", "op", op, "package_id", id, "error", err)

		return persistence.NewPackageError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewPackageError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewPackageError(op, id, persistence.ErrPackageNotFound)
	}

	return nil
}

func (r *PackageRepository) scanRecord(row *sql.Row) (*models.WorkflowRecord, error) {
	var (
		record                                 models.WorkflowRecord
		status, stage, approval                string
		inputJSON, analysisJSON, artifactsJSON []byte
		qaJSON                                 []byte
		completedAt                            sql.NullTime
	)

	err := row.Scan(
		&record.ID, &record.WorkflowID, &record.UserID, &status, &stage,
		&record.Progress.Percentage, &record.Progress.CurrentStep,
		&inputJSON, &analysisJSON, &artifactsJSON, &approval, &qaJSON, &record.ErrorMessage,
		&record.CreatedAt, &record.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrPackageNotFound
		}

		return nil, fmt.Errorf("failed to scan package: %w", err)
	}

	record.Status = models.WorkflowStatus(status)
	record.Stage = models.Stage(stage)
	record.ApprovalStatus = models.ApprovalStatus(approval)

	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		record.CompletedAt = &completed
	}

	err = unmarshalNullable(inputJSON, &record.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	err = unmarshalNullable(analysisJSON, &record.AnalysisData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis data: %w", err)
	}

	err = unmarshalNullable(qaJSON, &record.QAReport)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal QA report: %w", err)
	}

	record.Artifacts = make(map[string][]string)

	err = unmarshalNullable(artifactsJSON, &record.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}

	return &record, nil
}

// marshalNullable encodes value for a JSONB column, mapping nil to SQL NULL.
func marshalNullable(value any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return string(data), nil
}

func unmarshalNullable(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
