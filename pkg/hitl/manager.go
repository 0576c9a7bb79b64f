// Package hitl implements the human approval gate that resolves workflows
// paused at the approval stage.
package hitl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/services"
	"github.com/google/uuid"
)

const DefaultRejectReason = "No reason provided"

// Target selects what a regeneration produces.
type Target string

const (
	TargetCopywriting Target = "copywriting"
	TargetImages      Target = "images"
	TargetVideo       Target = "video"
	TargetAll         Target = "all"
)

func (t Target) Valid() bool {
	switch t {
	case TargetCopywriting, TargetImages, TargetVideo, TargetAll:
		return true
	default:
		return false
	}
}

// Starter launches a new workflow in the background.
type Starter interface {
	StartAsync(ctx context.Context, req models.GenerationRequest, userID string) (string, error)
}

type RegenerateResult struct {
	WorkflowID      string                `json:"workflow_id"`
	Status          models.WorkflowStatus `json:"status"`
	Target          Target                `json:"target"`
	SourcePackageID string                `json:"source_package_id"`
}

type Manager struct {
	packages persistence.PackageRepository
	emitter  *notify.Emitter
	starter  Starter
	logger   *slog.Logger

	// decisions on the same record must not interleave
	mu sync.Mutex
}

type Option func(*Manager)

// WithStarter enables Regenerate.
func WithStarter(starter Starter) Option {
	return func(m *Manager) {
		m.starter = starter
	}
}

func NewManager(packages persistence.PackageRepository, emitter *notify.Emitter, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		packages: packages,
		emitter:  emitter,
		logger:   logger.With("module", "hitl"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RequestApproval pauses an existing, non-terminal record at the approval stage.
func (m *Manager) RequestApproval(ctx context.Context, packageID, reason string, qaScore float64) (*models.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.packages.GetByID(ctx, packageID)
	if err != nil {
		if persistence.IsPackageNotFound(err) {
			return nil, services.NewValidationError("hitl.request_approval", "package "+packageID+" does not exist", err)
		}

		return nil, err
	}

	if record.Status.IsTerminal() {
		return nil, services.NewValidationError("hitl.request_approval",
			fmt.Sprintf("package %s is already %s", packageID, record.Status), nil)
	}

	progress := models.Progress{Percentage: models.StageApproval.Milestone(), CurrentStep: "Awaiting approval"}

	err = m.packages.UpdateStatus(ctx, packageID, models.StatusUpdate{
		Status:   models.WorkflowStatusApprovalRequired,
		Stage:    models.StageApproval,
		Progress: &progress,
	})
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(ctx, events.NewApprovalRequired(record.WorkflowID, packageID, reason, qaScore))
	m.logger.InfoContext(ctx, "Approval requested", "package_id", packageID, "workflow_id", record.WorkflowID)

	return m.packages.GetByID(ctx, packageID)
}

// Approve completes a record awaiting approval.
func (m *Manager) Approve(ctx context.Context, packageID, comment string) (*models.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.awaiting(ctx, "hitl.approve", packageID)
	if err != nil {
		return nil, err
	}

	progress := models.Progress{Percentage: models.StageDone.Milestone(), CurrentStep: "Approved"}

	err = m.decide(ctx, record, models.ApprovalStatusApproved, models.StatusUpdate{
		Status:   models.WorkflowStatusCompleted,
		Stage:    models.StageDone,
		Progress: &progress,
	})
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(ctx, events.NewProgress(record.WorkflowID, string(models.StageDone), progress.Percentage, progress.CurrentStep))
	m.emitDecision(ctx, record, models.WorkflowStatusCompleted, models.ApprovalStatusApproved, comment)

	return m.packages.GetByID(ctx, packageID)
}

// Reject fails a record awaiting approval. The stage is kept.
func (m *Manager) Reject(ctx context.Context, packageID, comment string) (*models.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.awaiting(ctx, "hitl.reject", packageID)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(comment)
	if reason == "" {
		reason = DefaultRejectReason
	}

	message := "Rejected: " + reason

	err = m.decide(ctx, record, models.ApprovalStatusRejected, models.StatusUpdate{
		Status:       models.WorkflowStatusFailed,
		ErrorMessage: &message,
	})
	if err != nil {
		return nil, err
	}

	m.emitDecision(ctx, record, models.WorkflowStatusFailed, models.ApprovalStatusRejected, reason)

	return m.packages.GetByID(ctx, packageID)
}

// Regenerate starts a new workflow from the inputs of an existing package.
// The original record is left untouched.
func (m *Manager) Regenerate(ctx context.Context, packageID string, target Target, reason string) (*RegenerateResult, error) {
	if m.starter == nil {
		return nil, fmt.Errorf("hitl.regenerate: %w", services.ErrNotConfigured)
	}

	if !target.Valid() {
		return nil, services.NewValidationError("hitl.regenerate", fmt.Sprintf("unknown regeneration target %q", target), nil)
	}

	record, err := m.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, err
	}

	req := requestFromInput(record.InputData)
	req.WorkflowID = uuid.New().String()
	req.Metadata = map[string]any{
		"regenerated_from": packageID,
		"source_workflow":  record.WorkflowID,
		"target":           string(target),
	}

	if reason != "" {
		req.Metadata["reason"] = reason
	}

	workflowID, err := m.starter.StartAsync(ctx, req, record.UserID)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Regeneration started",
		"package_id", packageID, "target", target, "new_workflow_id", workflowID)

	return &RegenerateResult{
		WorkflowID:      workflowID,
		Status:          models.WorkflowStatusRunning,
		Target:          target,
		SourcePackageID: packageID,
	}, nil
}

func (m *Manager) awaiting(ctx context.Context, op, packageID string) (*models.WorkflowRecord, error) {
	record, err := m.packages.GetByID(ctx, packageID)
	if err != nil {
		if persistence.IsPackageNotFound(err) {
			return nil, services.NewValidationError(op, "package "+packageID+" does not exist", err)
		}

		return nil, err
	}

	if record.Status != models.WorkflowStatusApprovalRequired {
		return nil, services.NewValidationError(op,
			fmt.Sprintf("package %s is %s, not awaiting approval", packageID, record.Status), nil)
	}

	return record, nil
}

// decide writes the approval decision and then the status. When the status
// write fails the previous approval status is put back, so the record stays
// awaiting a decision.
func (m *Manager) decide(ctx context.Context, record *models.WorkflowRecord, decision models.ApprovalStatus, update models.StatusUpdate) error {
	err := m.packages.UpdateApproval(ctx, record.ID, decision)
	if err != nil {
		return err
	}

	err = m.packages.UpdateStatus(ctx, record.ID, update)
	if err == nil {
		return nil
	}

	restoreErr := m.packages.UpdateApproval(context.WithoutCancel(ctx), record.ID, record.ApprovalStatus)
	if restoreErr != nil {
		m.logger.ErrorContext(ctx, "Failed to restore approval status",
			"package_id", record.ID, "error", restoreErr)

		return errors.Join(err, restoreErr)
	}

	return err
}

func (m *Manager) emitDecision(ctx context.Context, record *models.WorkflowRecord, status models.WorkflowStatus, decision models.ApprovalStatus, comment string) {
	data := map[string]any{
		"package_id":      record.ID,
		"workflow_id":     record.WorkflowID,
		"status":          string(status),
		"approval_status": string(decision),
	}

	if comment != "" {
		data["comment"] = comment
	}

	m.emitter.Emit(ctx, events.NewResult(record.WorkflowID, data))
	m.logger.InfoContext(ctx, "Approval decision recorded",
		"package_id", record.ID, "workflow_id", record.WorkflowID, "decision", decision)
}

// requestFromInput rebuilds a generation request from persisted input data,
// which may have been through a JSON round trip.
func requestFromInput(input map[string]any) models.GenerationRequest {
	req := models.GenerationRequest{
		BackgroundContext: stringValue(input["background_context"]),
		ImageURL:          stringValue(input["image_url"]),
	}

	if req.ImageURL == "" {
		req.ImageAssetID = stringValue(input["image_asset_id"])
	}

	if opts, ok := input["options"].(map[string]any); ok {
		req.Options.BrandGuidelines = stringValue(opts["brand_guidelines"])

		if approval, ok := opts["require_approval"].(bool); ok {
			req.Options.RequireApproval = approval
		}

		switch v := opts["video_duration_sec"].(type) {
		case int:
			req.Options.VideoDurationSec = v
		case float64:
			req.Options.VideoDurationSec = int(v)
		}
	}

	return req
}

func stringValue(v any) string {
	s, _ := v.(string)

	return s
}
