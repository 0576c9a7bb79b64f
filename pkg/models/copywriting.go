package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates an out-of-order copywriting stage transition.
var ErrInvalidTransition = errors.New("invalid stage transition")

// CopyStage is a node of the copywriting sub-workflow. The zero value is
// CopyStageNone, meaning no node has completed yet.
type CopyStage string

const (
	CopyStageNone      CopyStage = ""
	CopyStagePlan      CopyStage = "PLAN"
	CopyStageDraft     CopyStage = "DRAFT"
	CopyStageCritique  CopyStage = "CRITIQUE"
	CopyStageFinalize  CopyStage = "FINALIZE"
	CopyStageCompleted CopyStage = "COMPLETED"
)

var copyTransitions = map[CopyStage]CopyStage{
	CopyStageNone:     CopyStagePlan,
	CopyStagePlan:     CopyStageDraft,
	CopyStageDraft:    CopyStageCritique,
	CopyStageCritique: CopyStageFinalize,
	CopyStageFinalize: CopyStageCompleted,
}

// Next returns the only stage reachable from s.
func (s CopyStage) Next() (CopyStage, bool) {
	next, ok := copyTransitions[s]

	return next, ok
}

// String renders CopyStageNone as "None".
func (s CopyStage) String() string {
	if s == CopyStageNone {
		return "None"
	}

	return string(s)
}

// MarshalJSON encodes CopyStageNone as null.
func (s CopyStage) MarshalJSON() ([]byte, error) {
	if s == CopyStageNone {
		return []byte("null"), nil
	}

	return json.Marshal(string(s))
}

// UnmarshalJSON accepts null or one of the known stage names.
func (s *CopyStage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = CopyStageNone

		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	stage := CopyStage(raw)
	switch stage {
	case CopyStageNone, CopyStagePlan, CopyStageDraft, CopyStageCritique, CopyStageFinalize, CopyStageCompleted:
		*s = stage

		return nil
	default:
		return fmt.Errorf("unknown copywriting stage %q", raw)
	}
}

// CopywritingState is the shared state of one copywriting sub-workflow run.
// Each stage owns one optional field, filled when that stage completes.
type CopywritingState struct {
	ProductName     string    `json:"product_name"`
	Features        []string  `json:"features"`
	WorkflowID      string    `json:"workflow_id"`
	CurrentStage    CopyStage `json:"current_stage"`
	Plan            *string   `json:"plan,omitempty"`
	Draft           *string   `json:"draft,omitempty"`
	Critique        *string   `json:"critique,omitempty"`
	FinalCopy       *string   `json:"final_copy,omitempty"`
	BrandGuidelines *string   `json:"brand_guidelines,omitempty"`
}

// TransitionTo moves the state to next, rejecting anything but the single
// adjacent stage from the transition table.
func (s *CopywritingState) TransitionTo(next CopyStage) error {
	allowed, ok := s.CurrentStage.Next()
	if !ok || allowed != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.CurrentStage, next)
	}

	s.CurrentStage = next

	return nil
}

// Clone returns a deep copy of the state.
func (s *CopywritingState) Clone() *CopywritingState {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Features = append([]string(nil), s.Features...)
	clone.Plan = cloneString(s.Plan)
	clone.Draft = cloneString(s.Draft)
	clone.Critique = cloneString(s.Critique)
	clone.FinalCopy = cloneString(s.FinalCopy)
	clone.BrandGuidelines = cloneString(s.BrandGuidelines)

	return &clone
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
