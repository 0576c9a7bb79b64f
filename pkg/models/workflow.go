// Package models defines the domain models for marketing package generation workflows.
package models

import (
	"errors"
	"time"
)

// ErrInvalidRequest indicates a generation request that fails its preconditions.
var ErrInvalidRequest = errors.New("invalid generation request")

// WorkflowStatus represents the lifecycle state of a workflow record.
type WorkflowStatus string

const (
	WorkflowStatusPending          WorkflowStatus = "pending"
	WorkflowStatusRunning          WorkflowStatus = "running"
	WorkflowStatusApprovalRequired WorkflowStatus = "approval_required"
	WorkflowStatusCompleted        WorkflowStatus = "completed"
	WorkflowStatusFailed           WorkflowStatus = "failed"
	WorkflowStatusCancelled        WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// Stage is one step of the top-level generation pipeline.
type Stage string

const (
	StageInit            Stage = "init"
	StageAnalysis        Stage = "analysis"
	StageCopywriting     Stage = "copywriting"
	StageImageGeneration Stage = "image_generation"
	StageVideoGeneration Stage = "video_generation"
	StageQAReview        Stage = "qa_review"
	StageApproval        Stage = "approval"
	StageDone            Stage = "done"
)

// stageOrder ranks the stages; approval and done share the final rank since
// the pipeline branches into one of them after QA review.
var stageOrder = map[Stage]int{
	StageInit:            0,
	StageAnalysis:        1,
	StageCopywriting:     2,
	StageImageGeneration: 3,
	StageVideoGeneration: 4,
	StageQAReview:        5,
	StageApproval:        6,
	StageDone:            6,
}

// stageMilestones are the fixed progress percentages reported for each stage.
var stageMilestones = map[Stage]int{
	StageInit:            0,
	StageAnalysis:        10,
	StageCopywriting:     25,
	StageImageGeneration: 45,
	StageVideoGeneration: 65,
	StageQAReview:        85,
	StageApproval:        95,
	StageDone:            100,
}

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]

	return ok
}

// Milestone returns the progress percentage for the stage.
func (s Stage) Milestone() int {
	return stageMilestones[s]
}

// CanAdvanceTo reports whether the pipeline may move from s to next.
// Staying on the same stage is allowed; moving backwards or across the
// approval/done branch is not. Approval may still resolve into done.
func (s Stage) CanAdvanceTo(next Stage) bool {
	from, ok := stageOrder[s]
	if !ok {
		return false
	}

	to, ok := stageOrder[next]
	if !ok {
		return false
	}

	if s == StageApproval && next == StageDone {
		return true
	}

	if s == next {
		return true
	}

	return to > from
}

// ApprovalStatus tracks the human decision on a workflow awaiting approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Progress describes how far a workflow has come.
type Progress struct {
	Percentage  int    `json:"percentage"`
	CurrentStep string `json:"current_step"`
}

// WorkflowRecord is the durable aggregate for one marketing package generation.
type WorkflowRecord struct {
	ID             string              `json:"id"`
	WorkflowID     string              `json:"workflow_id"`
	UserID         string              `json:"user_id,omitempty"`
	Status         WorkflowStatus      `json:"status"`
	Stage          Stage               `json:"stage"`
	Progress       Progress            `json:"progress"`
	InputData      map[string]any      `json:"input_data,omitempty"`
	AnalysisData   *Analysis           `json:"analysis_data,omitempty"`
	Artifacts      map[string][]string `json:"artifacts"`
	ApprovalStatus ApprovalStatus      `json:"approval_status"`
	QAReport       *QAReport           `json:"qa_report,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// StatusUpdate is a partial update of the lifecycle columns of a record.
// Stage and Progress are left untouched when zero.
type StatusUpdate struct {
	Status       WorkflowStatus
	Stage        Stage
	Progress     *Progress
	ErrorMessage *string
}

// Apply writes update onto the record. CompletedAt is stamped the first time
// the record reaches a terminal status.
func (r *WorkflowRecord) Apply(update StatusUpdate, now time.Time) {
	if update.Status != "" {
		r.Status = update.Status
	}

	if update.Stage != "" {
		r.Stage = update.Stage
	}

	if update.Progress != nil {
		r.Progress = *update.Progress
	}

	if update.ErrorMessage != nil {
		r.ErrorMessage = *update.ErrorMessage
	}

	if r.Status.IsTerminal() && r.CompletedAt == nil {
		completed := now
		r.CompletedAt = &completed
	}

	r.UpdatedAt = now
}

// NewWorkflowRecord returns a running record at the init stage.
func NewWorkflowRecord(id, workflowID, userID string, input map[string]any, now time.Time) *WorkflowRecord {
	return &WorkflowRecord{
		ID:             id,
		WorkflowID:     workflowID,
		UserID:         userID,
		Status:         WorkflowStatusRunning,
		Stage:          StageInit,
		Progress:       Progress{Percentage: StageInit.Milestone(), CurrentStep: "Initializing workflow"},
		InputData:      input,
		Artifacts:      make(map[string][]string),
		ApprovalStatus: ApprovalStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
