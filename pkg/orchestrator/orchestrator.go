// Package orchestrator drives one marketing package generation from product
// analysis to approval, persisting the record and notifying subscribers after
// every stage.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/promoflow/pkg/copywriting"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/imagegen"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/otelhelper"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/qa"
	"github.com/dukex/promoflow/pkg/services"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultVideoDurationSec = 15
	DefaultVideoTimeout     = 120 * time.Second
	DefaultMaxScenes        = 4
)

type Analyzer interface {
	Analyze(ctx context.Context, imageURL, backgroundContext string) (*models.Analysis, error)
}

type CopyEngine interface {
	Run(ctx context.Context, in copywriting.Input) (*models.CopywritingState, error)
}

type VideoGenerator interface {
	Generate(ctx context.Context, prompt string, images []string, durationSec int, timeout time.Duration) (*models.VideoArtifact, error)
}

type Reviewer interface {
	Review(ctx context.Context, in qa.Input) (*models.QAReport, error)
}

// StageTracker mirrors stage progress into the live workflow registry.
type StageTracker interface {
	SetStage(workflowID string, stage models.Stage, status models.WorkflowStatus)
}

// Collaborators groups the generation services the saga delegates to.
type Collaborators struct {
	Analyzer Analyzer
	Copy     CopyEngine
	Images   imagegen.Generator
	Video    VideoGenerator
	Reviewer Reviewer
}

type Config struct {
	VideoDurationSec int
	VideoTimeout     time.Duration
	MaxScenes        int
}

type Orchestrator struct {
	packages  persistence.PackageRepository
	artifacts persistence.ArtifactRepository
	collab    Collaborators
	emitter   *notify.Emitter
	tracker   StageTracker
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithTracker(tracker StageTracker) Option {
	return func(o *Orchestrator) {
		o.tracker = tracker
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.VideoDurationSec > 0 {
			o.cfg.VideoDurationSec = cfg.VideoDurationSec
		}

		if cfg.VideoTimeout > 0 {
			o.cfg.VideoTimeout = cfg.VideoTimeout
		}

		if cfg.MaxScenes > 0 {
			o.cfg.MaxScenes = cfg.MaxScenes
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	p persistence.Persistence,
	collab Collaborators,
	emitter *notify.Emitter,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		packages:  p.PackageRepository(),
		artifacts: p.ArtifactRepository(),
		collab:    collab,
		emitter:   emitter,
		tracer:    otelhelper.NoopTracer(),
		logger:    logger.With("module", "orchestrator"),
		cfg: Config{
			VideoDurationSec: DefaultVideoDurationSec,
			VideoTimeout:     DefaultVideoTimeout,
			MaxScenes:        DefaultMaxScenes,
		},
		now: func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// run carries the state of one saga execution between steps.
type run struct {
	req      models.GenerationRequest
	userID   string
	imageURL string
	record   *models.WorkflowRecord
	stage    models.Stage
	logger   *slog.Logger

	analysis *models.Analysis
	copy     []models.Artifact
	images   []models.Artifact
	video    *models.VideoArtifact
	qa       *models.QAReport
}

type step struct {
	stage       models.Stage
	currentStep string
	exec        func(ctx context.Context, r *run) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{models.StageInit, "Initializing workflow", o.initialize},
		{models.StageAnalysis, "Analyzing product", o.analyze},
		{models.StageCopywriting, "Generating copy", o.writeCopy},
		{models.StageImageGeneration, "Generating images", o.generateImages},
		{models.StageVideoGeneration, "Generating video", o.generateVideo},
		{models.StageQAReview, "Reviewing quality", o.review},
	}
}

// Run executes every stage in order. With RequireApproval the saga stops at
// the approval stage and is resumed by a human decision. Any failure marks
// the record failed, or cancelled when ctx was cancelled, and is returned.
func (o *Orchestrator) Run(ctx context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error) {
	err := req.Validate()
	if err != nil {
		return nil, services.NewValidationError("orchestrator.run", err.Error(), err)
	}

	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	r := &run{
		req:    req,
		userID: userID,
		stage:  models.StageInit,
		logger: o.logger.With("workflow_id", req.WorkflowID),
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
	)
	defer span.End()

	r.imageURL, err = o.resolveImage(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	for _, s := range o.steps() {
		err = o.runStep(ctx, r, s)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.StageKey, string(s.stage)))

			return o.abort(ctx, r, err)
		}
	}

	result, err := o.conclude(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return o.abort(ctx, r, err)
	}

	span.SetAttributes(attribute.String(otelhelper.PackageIDKey, result.PackageID))
	otelhelper.SetOK(span)

	return result, nil
}

func (o *Orchestrator) runStep(ctx context.Context, r *run, s step) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	stageCtx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.stage."+string(s.stage),
		attribute.String(otelhelper.WorkflowIDKey, r.req.WorkflowID),
		attribute.String(otelhelper.StageKey, string(s.stage)),
	)
	defer span.End()

	o.track(r, s.stage, models.WorkflowStatusRunning)

	started := time.Now()
	err = s.exec(stageCtx, r)
	o.metrics.ObserveStage(string(s.stage), time.Since(started), err)

	if err != nil {
		otelhelper.SetError(span, err)
		r.logger.ErrorContext(ctx, "Stage failed", "stage", s.stage, "error", err)

		return err
	}

	err = o.advance(ctx, r, s.stage, models.WorkflowStatusRunning, s.currentStep)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	otelhelper.SetOK(span)
	r.logger.InfoContext(ctx, "Stage completed", "stage", s.stage)

	return nil
}

// advance persists the new stage with its milestone and emits the progress event.
func (o *Orchestrator) advance(ctx context.Context, r *run, stage models.Stage, status models.WorkflowStatus, currentStep string) error {
	if !r.stage.CanAdvanceTo(stage) {
		return services.NewValidationError("orchestrator.advance",
			fmt.Sprintf("cannot move from stage %s to %s", r.stage, stage), nil)
	}

	progress := models.Progress{Percentage: stage.Milestone(), CurrentStep: currentStep}

	err := o.packages.UpdateStatus(ctx, r.record.ID, models.StatusUpdate{
		Status:   status,
		Stage:    stage,
		Progress: &progress,
	})
	if err != nil {
		return fmt.Errorf("failed to persist stage %s: %w", stage, err)
	}

	r.stage = stage
	o.track(r, stage, status)
	o.emitter.Emit(ctx, events.NewProgress(r.req.WorkflowID, string(stage), progress.Percentage, currentStep))

	return nil
}

func (o *Orchestrator) conclude(ctx context.Context, r *run) (*models.RunResult, error) {
	if r.req.Options.RequireApproval {
		err := o.advance(ctx, r, models.StageApproval, models.WorkflowStatusApprovalRequired, "Awaiting approval")
		if err != nil {
			return nil, err
		}

		score := 0.0
		if r.qa != nil {
			score = r.qa.Score
		}

		o.emitter.Emit(ctx, events.NewApprovalRequired(r.req.WorkflowID, r.record.ID, "Manual approval requested", score))

		return o.result(ctx, r, models.WorkflowStatusApprovalRequired), nil
	}

	err := o.advance(ctx, r, models.StageDone, models.WorkflowStatusCompleted, "Workflow completed")
	if err != nil {
		return nil, err
	}

	return o.result(ctx, r, models.WorkflowStatusCompleted), nil
}

func (o *Orchestrator) result(ctx context.Context, r *run, status models.WorkflowStatus) *models.RunResult {
	result := &models.RunResult{
		PackageID:  r.record.ID,
		WorkflowID: r.req.WorkflowID,
		Status:     status,
		Stage:      r.stage,
	}

	o.emitter.Emit(ctx, events.NewResult(r.req.WorkflowID, map[string]any{
		"package_id":  result.PackageID,
		"workflow_id": result.WorkflowID,
		"status":      string(result.Status),
		"stage":       string(result.Stage),
	}))

	r.logger.InfoContext(ctx, "Workflow concluded", "package_id", result.PackageID, "status", status)

	return result
}

// abort records the terminal failure. Persistence runs detached from ctx so
// that a cancelled workflow is still marked.
func (o *Orchestrator) abort(ctx context.Context, r *run, cause error) (*models.RunResult, error) {
	if r.record == nil {
		return nil, cause
	}

	status := models.WorkflowStatusFailed
	if services.IsCancelled(cause) || ctx.Err() != nil {
		status = models.WorkflowStatusCancelled
	}

	message := cause.Error()

	err := o.packages.UpdateStatus(context.WithoutCancel(ctx), r.record.ID, models.StatusUpdate{
		Status:       status,
		ErrorMessage: &message,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist workflow failure", "error", err, "cause", cause)
	}

	o.track(r, r.stage, status)

	return &models.RunResult{
		PackageID:  r.record.ID,
		WorkflowID: r.req.WorkflowID,
		Status:     status,
		Stage:      r.stage,
	}, cause
}

func (o *Orchestrator) track(r *run, stage models.Stage, status models.WorkflowStatus) {
	if o.tracker == nil {
		return
	}

	o.tracker.SetStage(r.req.WorkflowID, stage, status)
}

// resolveImage returns the image URL of the request, reading the referenced
// asset when only an id was given.
func (o *Orchestrator) resolveImage(ctx context.Context, req models.GenerationRequest) (string, error) {
	if req.ImageURL != "" {
		return req.ImageURL, nil
	}

	asset, err := o.artifacts.GetByID(ctx, req.ImageAssetID)
	if err != nil {
		if persistence.IsArtifactNotFound(err) {
			return "", services.NewValidationError("orchestrator.resolve_image",
				"image asset "+req.ImageAssetID+" does not exist", err)
		}

		return "", err
	}

	if asset.Type != models.ArtifactTypeImage || asset.URL == "" {
		return "", services.NewValidationError("orchestrator.resolve_image",
			"asset "+req.ImageAssetID+" is not an image", nil)
	}

	return asset.URL, nil
}
