package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/dukex/promoflow/pkg/copywriting"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/otelhelper"
	"github.com/dukex/promoflow/pkg/qa"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	toolAnalysis = "product_analysis"
	toolImages   = "image_generation"
	toolVideo    = "video_generation"
	toolQA       = "qa_review"
)

func (o *Orchestrator) initialize(ctx context.Context, r *run) error {
	input := map[string]any{
		"workspace_id":       uuid.New().String(),
		"background_context": r.req.BackgroundContext,
		"image_url":          r.imageURL,
		"options": map[string]any{
			"require_approval":   r.req.Options.RequireApproval,
			"video_duration_sec": r.req.Options.VideoDurationSec,
			"brand_guidelines":   r.req.Options.BrandGuidelines,
		},
	}

	if r.req.ImageAssetID != "" {
		input["image_asset_id"] = r.req.ImageAssetID
	}

	if len(r.req.Metadata) > 0 {
		input["metadata"] = maps.Clone(r.req.Metadata)
	}

	record := models.NewWorkflowRecord(uuid.New().String(), r.req.WorkflowID, r.userID, input, o.now())

	err := o.packages.Create(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create workflow record: %w", err)
	}

	r.record = record
	r.logger = r.logger.With("package_id", record.ID)

	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, r *run) error {
	return o.withToolCall(ctx, r, toolAnalysis, "Analyzing product image", func() error {
		analysis, err := o.collab.Analyzer.Analyze(ctx, r.imageURL, r.req.BackgroundContext)
		if err != nil {
			return err
		}

		err = o.packages.UpdateAnalysis(ctx, r.record.ID, analysis)
		if err != nil {
			return fmt.Errorf("failed to persist analysis: %w", err)
		}

		r.analysis = analysis

		return nil
	})
}

func (o *Orchestrator) writeCopy(ctx context.Context, r *run) error {
	guidelines := r.req.Options.BrandGuidelines
	if guidelines == "" {
		guidelines = r.analysis.BrandGuidelines
	}

	state, err := o.collab.Copy.Run(ctx, copywriting.Input{
		WorkflowID:      r.req.WorkflowID,
		ProductName:     r.analysis.ProductName,
		Features:        r.analysis.Features,
		BrandGuidelines: guidelines,
	})
	if err != nil {
		return err
	}

	if state.FinalCopy == nil {
		return fmt.Errorf("copywriting finished without final copy")
	}

	metadata := map[string]any{"stage": state.CurrentStage.String()}
	if state.Plan != nil {
		metadata["plan"] = *state.Plan
	}

	if state.Critique != nil {
		metadata["critique"] = *state.Critique
	}

	artifact, err := o.storeArtifact(ctx, r, models.Artifact{
		Type:     models.ArtifactTypeCopy,
		Label:    "Final copy",
		Content:  *state.FinalCopy,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}

	r.copy = append(r.copy, *artifact)

	return nil
}

func (o *Orchestrator) generateImages(ctx context.Context, r *run) error {
	scenes := r.analysis.SuggestedScenes
	if len(scenes) == 0 {
		scenes = []string{"Hero shot of " + r.analysis.ProductName}
	}

	if len(scenes) > o.cfg.MaxScenes {
		scenes = scenes[:o.cfg.MaxScenes]
	}

	for i, scene := range scenes {
		label := fmt.Sprintf("Scene %d", i+1)

		err := o.withToolCall(ctx, r, toolImages, label+": "+scene, func() error {
			image, err := o.collab.Images.Generate(ctx, fmt.Sprintf("%s. %s", r.analysis.ProductName, scene), r.imageURL)
			if err != nil {
				return err
			}

			artifact, err := o.storeArtifact(ctx, r, models.Artifact{
				Type:  models.ArtifactTypeImage,
				URL:   image.URL,
				Label: label,
				Metadata: map[string]any{
					"scene":    scene,
					"provider": image.Provider,
					"prompt":   image.Prompt,
				},
			})
			if err != nil {
				return err
			}

			r.images = append(r.images, *artifact)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) generateVideo(ctx context.Context, r *run) error {
	duration := r.req.Options.VideoDurationSec
	if duration == 0 {
		duration = o.cfg.VideoDurationSec
	}

	images := make([]string, 0, len(r.images))
	for _, image := range r.images {
		images = append(images, image.URL)
	}

	prompt := strings.TrimSpace(r.analysis.ProductName + ". " + r.req.BackgroundContext)

	return o.withToolCall(ctx, r, toolVideo, "Generating product video", func() error {
		video, err := o.collab.Video.Generate(ctx, prompt, images, duration, o.cfg.VideoTimeout)
		if err != nil {
			return err
		}

		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String(otelhelper.ProviderKey, video.Provider),
			attribute.Bool(otelhelper.FallbackKey, video.IsFallback),
		)

		metadata := maps.Clone(video.Metadata)
		if metadata == nil {
			metadata = make(map[string]any)
		}

		metadata["provider"] = video.Provider
		metadata["duration_sec"] = video.DurationSec
		metadata["is_fallback"] = video.IsFallback

		_, err = o.storeArtifact(ctx, r, models.Artifact{
			Type:     models.ArtifactTypeVideo,
			URL:      video.URL,
			Label:    "Product video",
			Metadata: metadata,
		})
		if err != nil {
			return err
		}

		r.video = video

		return nil
	})
}

func (o *Orchestrator) review(ctx context.Context, r *run) error {
	return o.withToolCall(ctx, r, toolQA, "Reviewing package quality", func() error {
		report, err := o.collab.Reviewer.Review(ctx, qa.Input{
			ProductName: r.analysis.ProductName,
			Copy:        r.copy,
			Images:      r.images,
			Video:       r.video,
		})
		if err != nil {
			return err
		}

		err = o.packages.UpdateQAReport(ctx, r.record.ID, report)
		if err != nil {
			return fmt.Errorf("failed to persist QA report: %w", err)
		}

		r.qa = report

		return nil
	})
}

// withToolCall brackets a collaborator call with in_progress and
// completed/error tool call events.
func (o *Orchestrator) withToolCall(ctx context.Context, r *run, tool, message string, call func() error) error {
	o.emitter.Emit(ctx, events.NewToolCall(r.req.WorkflowID, tool, events.ToolCallInProgress, message))

	err := call()
	if err != nil {
		o.emitter.Emit(ctx, events.NewToolCall(r.req.WorkflowID, tool, events.ToolCallError, err.Error()))

		return err
	}

	o.emitter.Emit(ctx, events.NewToolCall(r.req.WorkflowID, tool, events.ToolCallCompleted, message))

	return nil
}

// storeArtifact saves the artifact, links it to the record and announces it.
func (o *Orchestrator) storeArtifact(ctx context.Context, r *run, artifact models.Artifact) (*models.Artifact, error) {
	artifact.ID = uuid.New().String()
	artifact.WorkflowID = r.req.WorkflowID
	artifact.CreatedAt = o.now()

	err := o.artifacts.Save(ctx, &artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s artifact: %w", artifact.Type, err)
	}

	err = o.packages.LinkArtifact(ctx, r.record.ID, artifact.Type, artifact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to link %s artifact: %w", artifact.Type, err)
	}

	o.emitter.Emit(ctx, events.NewArtifact(r.req.WorkflowID, string(artifact.Type), artifact.ID, artifact.URL, artifact.Label))

	return &artifact, nil
}
