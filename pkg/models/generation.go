package models

import (
	"fmt"
	"strings"
)

// GenerationOptions tunes a single generation run.
type GenerationOptions struct {
	RequireApproval  bool   `json:"require_approval"`
	VideoDurationSec int    `json:"video_duration_sec,omitempty"`
	BrandGuidelines  string `json:"brand_guidelines,omitempty"`
}

// GenerationRequest starts a marketing package workflow. Exactly one of
// ImageURL and ImageAssetID must be set.
type GenerationRequest struct {
	WorkflowID        string            `json:"workflow_id,omitempty"`
	ImageURL          string            `json:"image_url,omitempty"`
	ImageAssetID      string            `json:"image_asset_id,omitempty"`
	BackgroundContext string            `json:"background_context"`
	Options           GenerationOptions `json:"options"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// Validate checks the request preconditions.
func (r GenerationRequest) Validate() error {
	hasURL := strings.TrimSpace(r.ImageURL) != ""
	hasAsset := strings.TrimSpace(r.ImageAssetID) != ""

	switch {
	case hasURL && hasAsset:
		return fmt.Errorf("%w: image_url and image_asset_id are mutually exclusive", ErrInvalidRequest)
	case !hasURL && !hasAsset:
		return fmt.Errorf("%w: one of image_url or image_asset_id is required", ErrInvalidRequest)
	case strings.TrimSpace(r.BackgroundContext) == "":
		return fmt.Errorf("%w: background_context is required", ErrInvalidRequest)
	case r.Options.VideoDurationSec < 0:
		return fmt.Errorf("%w: video_duration_sec must not be negative", ErrInvalidRequest)
	}

	return nil
}

// RunResult is returned by a saga run.
type RunResult struct {
	PackageID  string         `json:"package_id"`
	WorkflowID string         `json:"workflow_id"`
	Status     WorkflowStatus `json:"status"`
	Stage      Stage          `json:"stage"`
}

// Analysis is the product analysis produced for the input image.
type Analysis struct {
	ProductName     string   `json:"product_name"`
	Category        string   `json:"category,omitempty"`
	Features        []string `json:"features"`
	TargetAudience  string   `json:"target_audience,omitempty"`
	SuggestedScenes []string `json:"suggested_scenes"`
	BrandGuidelines string   `json:"brand_guidelines,omitempty"`
}

// QAReport is the outcome of the quality review stage.
type QAReport struct {
	Score   float64        `json:"score"`
	Issues  []string       `json:"issues"`
	Checks  map[string]any `json:"checks,omitempty"`
	Passed  bool           `json:"passed"`
	Summary string         `json:"summary,omitempty"`
}
