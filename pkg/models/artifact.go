package models

import "time"

// ArtifactType groups the assets of a marketing package.
type ArtifactType string

const (
	ArtifactTypeCopy  ArtifactType = "copy"
	ArtifactTypeImage ArtifactType = "image"
	ArtifactTypeVideo ArtifactType = "video"
)

// Artifact is a generated or uploaded asset referenced by a workflow record.
type Artifact struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Type       ArtifactType   `json:"type"`
	URL        string         `json:"url,omitempty"`
	Label      string         `json:"label,omitempty"`
	Content    string         `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// VideoArtifact is the immutable output of the video generation stage.
type VideoArtifact struct {
	URL         string         `json:"url"`
	Provider    string         `json:"provider"`
	DurationSec int            `json:"duration_sec"`
	IsFallback  bool           `json:"is_fallback"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
