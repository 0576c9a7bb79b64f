package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dukex/promoflow/pkg/analysis"
	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/copywriting"
	"github.com/dukex/promoflow/pkg/hitl"
	"github.com/dukex/promoflow/pkg/imagegen"
	"github.com/dukex/promoflow/pkg/llm"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/orchestrator"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/qa"
	"github.com/dukex/promoflow/pkg/registry"
	"github.com/dukex/promoflow/pkg/services"
	"github.com/dukex/promoflow/pkg/video"
	"go.opentelemetry.io/otel/trace"
)

// PipelineDeps are the process-level collaborators shared by every workflow.
type PipelineDeps struct {
	Config      *config.Config
	Persistence persistence.Persistence
	Emitter     *notify.Emitter
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Checkpoints copywriting.CheckpointStore
	Generator   llm.TextGenerator
	Logger      *slog.Logger
}

// Pipeline is the assembled generation engine.
type Pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Approvals    *hitl.Manager
	Packages     *services.Packages
}

// NewGenerator builds the LLM client described by cfg.
func NewGenerator(cfg config.LLMConfig) *llm.Client {
	return llm.NewClient(
		llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		llm.WithRetryMaxAttempts(cfg.MaxAttempts),
		llm.WithRetryBackoff(cfg.RetryBaseDelay(), cfg.RetryMaxDelay()),
	)
}

// NewCheckpointStore returns a Redis store when redisURL is set and an
// in-memory one otherwise. The returned close function is never nil.
func NewCheckpointStore(ctx context.Context, redisURL string, cfg config.CopywritingConfig) (copywriting.CheckpointStore, func() error, error) {
	if redisURL == "" {
		return copywriting.NewMemoryCheckpointStore(), func() error { return nil }, nil
	}

	client, err := copywriting.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return copywriting.NewRedisCheckpointStore(client, cfg.CheckpointTTL()), client.Close, nil
}

// NewPipeline wires the collaborators, the saga, the registry that runs it in
// the background and the services on top of them.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	cfg := deps.Config
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}

	generator := deps.Generator
	if generator == nil {
		generator = NewGenerator(cfg.LLM)
	}

	slideshowDir, err := filepath.Abs(filepath.Join(cfg.WorkspaceDir, "slideshows"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	// the registry runs the orchestrator and the orchestrator reports stages
	// to the registry, so the runner is bound once both exist
	var saga *orchestrator.Orchestrator

	reg := registry.New(
		registry.RunnerFunc(func(ctx context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error) {
			return saga.Run(ctx, req, userID)
		}),
		deps.Emitter,
		deps.Logger,
		registry.WithMetrics(deps.Metrics),
	)

	copyEngine := copywriting.NewEngine(generator, deps.Emitter, deps.Logger,
		copywriting.WithCheckpointStore(deps.Checkpoints),
		copywriting.WithTracker(reg),
		copywriting.WithConfig(copywriting.Config{
			Model:       cfg.Copywriting.Model,
			Temperature: cfg.Copywriting.Temperature,
			MaxTokens:   cfg.Copywriting.MaxTokens,
		}),
		copywriting.WithFallbackHook(func(string) { deps.Metrics.Fallback("copywriting_stream") }),
	)

	videoOpts := []video.Option{
		video.WithTransition(cfg.Video.Transition),
		video.WithFallbackHook(func(string) { deps.Metrics.Fallback("video") }),
	}

	if cfg.Video.ProviderURL != "" {
		videoOpts = append(videoOpts, video.WithPrimary(
			video.NewHTTPProvider(cfg.Video.ProviderName, cfg.Video.ProviderURL, cfg.Video.APIKey, nil),
		))
	}

	var images imagegen.Generator = imagegen.Reference{}
	if cfg.ImageGen.Endpoint != "" {
		images = imagegen.NewClient(cfg.ImageGen.Endpoint, cfg.ImageGen.APIKey, cfg.ImageGen.Model, nil)
	}

	saga = orchestrator.New(
		deps.Persistence,
		orchestrator.Collaborators{
			Analyzer: analysis.NewAnalyzer(generator, cfg.LLM.Model, deps.Logger),
			Copy:     copyEngine,
			Images:   images,
			Video:    video.NewStrategy(video.NewLocalSlideshow(slideshowDir), deps.Logger, videoOpts...),
			Reviewer: qa.NewReviewer(qa.DefaultPassThreshold),
		},
		deps.Emitter,
		deps.Logger,
		orchestrator.WithTracker(reg),
		orchestrator.WithTracer(deps.Tracer),
		orchestrator.WithMetrics(deps.Metrics),
		orchestrator.WithConfig(orchestrator.Config{
			VideoDurationSec: cfg.Video.DurationSeconds,
			VideoTimeout:     cfg.Video.Timeout(),
			MaxScenes:        cfg.Pipeline.MaxScenes,
		}),
	)

	approvals := hitl.NewManager(deps.Persistence.PackageRepository(), deps.Emitter, deps.Logger, hitl.WithStarter(reg))

	return &Pipeline{
		Orchestrator: saga,
		Registry:     reg,
		Approvals:    approvals,
		Packages:     services.NewPackages(deps.Persistence, reg, deps.Logger),
	}, nil
}
