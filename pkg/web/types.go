// Package web provides HTTP request and response types for the package API.
package web

import "github.com/dukex/promoflow/pkg/models"

// CreatePackageRequest represents the request body for starting a package generation.
// Exactly one of ImageURL and ImageAssetID is accepted; the service layer enforces it.
type CreatePackageRequest struct {
	WorkflowID        string         `json:"workflow_id,omitempty"     validate:"omitempty,uuid"`
	ImageURL          string         `json:"image_url,omitempty"       validate:"omitempty,url"`
	ImageAssetID      string         `json:"image_asset_id,omitempty"`
	BackgroundContext string         `json:"background_context"        validate:"required"`
	Options           OptionsRequest `json:"options"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type OptionsRequest struct {
	RequireApproval  bool   `json:"require_approval"`
	VideoDurationSec int    `json:"video_duration_sec,omitempty" validate:"gte=0,lte=300"`
	BrandGuidelines  string `json:"brand_guidelines,omitempty"`
}

func (r CreatePackageRequest) toModel() models.GenerationRequest {
	return models.GenerationRequest{
		WorkflowID:        r.WorkflowID,
		ImageURL:          r.ImageURL,
		ImageAssetID:      r.ImageAssetID,
		BackgroundContext: r.BackgroundContext,
		Options: models.GenerationOptions{
			RequireApproval:  r.Options.RequireApproval,
			VideoDurationSec: r.Options.VideoDurationSec,
			BrandGuidelines:  r.Options.BrandGuidelines,
		},
		Metadata: r.Metadata,
	}
}

// CreatePackageResponse is returned once the workflow is running in the background.
type CreatePackageResponse struct {
	WorkflowID string                `json:"workflow_id"`
	Status     models.WorkflowStatus `json:"status"`
}

// DecisionRequest carries the reviewer comment of an approve or reject call.
type DecisionRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

type RegenerateRequest struct {
	Target string `json:"target" validate:"required,oneof=copywriting images video all"`
	Reason string `json:"reason" validate:"max=2000"`
}

type RequestApprovalRequest struct {
	Reason  string  `json:"reason"`
	QAScore float64 `json:"qa_score" validate:"gte=0,lte=1"`
}
