// Package events defines the notification payloads pushed to workflow subscribers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every notification; the message key is the workflow id, which
// doubles as the subscriber room.
const Topic = "promoflow.notifications"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ThoughtEventType          EventType = "thought"
	ToolCallEventType         EventType = "tool_call"
	ResultEventType           EventType = "result"
	ErrorEventType            EventType = "error"
	ProgressEventType         EventType = "progress"
	ArtifactEventType         EventType = "artifact"
	ApprovalRequiredEventType EventType = "approval_required"
)

// Error codes carried by ErrorEvent.
const (
	CodeWorkflowCancelled = "WORKFLOW_CANCELLED"
	CodeWorkflowFailed    = "WORKFLOW_FAILED"
	CodePlanFailed        = "PLAN_FAILED"
	CodeDraftFailed       = "DRAFT_FAILED"
	CodeCritiqueFailed    = "CRITIQUE_FAILED"
	CodeFinalizeFailed    = "FINALIZE_FAILED"
)

// ToolCallStatus is the lifecycle of a delegated collaborator call.
type ToolCallStatus string

const (
	ToolCallInProgress ToolCallStatus = "in_progress"
	ToolCallCompleted  ToolCallStatus = "completed"
	ToolCallError      ToolCallStatus = "error"
)

// Event is any notification published for a workflow.
type Event interface {
	GetType() EventType
	GetWorkflowID() string
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (b BaseEvent) GetWorkflowID() string {
	return b.WorkflowID
}

// Thought streams intermediate reasoning from a generation node.
type Thought struct {
	BaseEvent

	Content  string `json:"content"`
	NodeName string `json:"node_name"`
}

func (Thought) GetType() EventType {
	return ThoughtEventType
}

func NewThought(workflowID, nodeName, content string) *Thought {
	return &Thought{
		BaseEvent: NewBaseEvent(ThoughtEventType, workflowID),
		Content:   content,
		NodeName:  nodeName,
	}
}

type ToolCall struct {
	BaseEvent

	ToolName string         `json:"tool_name"`
	Status   ToolCallStatus `json:"status"`
	Message  string         `json:"message,omitempty"`
}

func (ToolCall) GetType() EventType {
	return ToolCallEventType
}

func NewToolCall(workflowID, toolName string, status ToolCallStatus, message string) *ToolCall {
	return &ToolCall{
		BaseEvent: NewBaseEvent(ToolCallEventType, workflowID),
		ToolName:  toolName,
		Status:    status,
		Message:   message,
	}
}

type Result struct {
	BaseEvent

	Data map[string]any `json:"data"`
}

func (Result) GetType() EventType {
	return ResultEventType
}

func NewResult(workflowID string, data map[string]any) *Result {
	return &Result{
		BaseEvent: NewBaseEvent(ResultEventType, workflowID),
		Data:      data,
	}
}

type Error struct {
	BaseEvent

	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) GetType() EventType {
	return ErrorEventType
}

func NewError(workflowID, code, message string) *Error {
	return &Error{
		BaseEvent: NewBaseEvent(ErrorEventType, workflowID),
		Code:      code,
		Message:   message,
	}
}

type Progress struct {
	BaseEvent

	Stage       string `json:"stage"`
	Percentage  int    `json:"percentage"`
	CurrentStep string `json:"current_step"`
}

func (Progress) GetType() EventType {
	return ProgressEventType
}

func NewProgress(workflowID, stage string, percentage int, currentStep string) *Progress {
	return &Progress{
		BaseEvent:   NewBaseEvent(ProgressEventType, workflowID),
		Stage:       stage,
		Percentage:  percentage,
		CurrentStep: currentStep,
	}
}

type Artifact struct {
	BaseEvent

	ArtifactType string `json:"artifact_type"`
	ArtifactID   string `json:"artifact_id"`
	URL          string `json:"url,omitempty"`
	Label        string `json:"label,omitempty"`
}

func (Artifact) GetType() EventType {
	return ArtifactEventType
}

func NewArtifact(workflowID, artifactType, artifactID, url, label string) *Artifact {
	return &Artifact{
		BaseEvent:    NewBaseEvent(ArtifactEventType, workflowID),
		ArtifactType: artifactType,
		ArtifactID:   artifactID,
		URL:          url,
		Label:        label,
	}
}

type ApprovalRequired struct {
	BaseEvent

	PackageID string  `json:"package_id"`
	Reason    string  `json:"reason"`
	QAScore   float64 `json:"qa_score"`
}

func (ApprovalRequired) GetType() EventType {
	return ApprovalRequiredEventType
}

func NewApprovalRequired(workflowID, packageID, reason string, qaScore float64) *ApprovalRequired {
	return &ApprovalRequired{
		BaseEvent: NewBaseEvent(ApprovalRequiredEventType, workflowID),
		PackageID: packageID,
		Reason:    reason,
		QAScore:   qaScore,
	}
}

// New returns an empty event value for decoding a payload of the given type.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case ThoughtEventType:
		return &Thought{}, true
	case ToolCallEventType:
		return &ToolCall{}, true
	case ResultEventType:
		return &Result{}, true
	case ErrorEventType:
		return &Error{}, true
	case ProgressEventType:
		return &Progress{}, true
	case ArtifactEventType:
		return &Artifact{}, true
	case ApprovalRequiredEventType:
		return &ApprovalRequired{}, true
	default:
		return nil, false
	}
}

// All lists every notification type.
func All() []EventType {
	return []EventType{
		ThoughtEventType,
		ToolCallEventType,
		ResultEventType,
		ErrorEventType,
		ProgressEventType,
		ArtifactEventType,
		ApprovalRequiredEventType,
	}
}
