// Package copywriting runs the staged copy generation sub-workflow:
// plan, draft, critique and finalize, each streamed with a non-streaming fallback.
package copywriting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/llm"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/services"
)

// StateKey is the registry state entry the engine reports progress under.
const StateKey = "copywriting"

// StateTracker receives live sub-workflow progress for status queries.
type StateTracker interface {
	SetState(workflowID, key string, value any)
}

type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Input seeds a copywriting run.
type Input struct {
	WorkflowID      string
	ProductName     string
	Features        []string
	BrandGuidelines string
}

type node struct {
	stage  models.CopyStage
	name   string
	code   string
	prompt func(*models.CopywritingState) (string, error)
	store  func(*models.CopywritingState, string)
}

type Engine struct {
	generator   llm.TextGenerator
	emitter     *notify.Emitter
	checkpoints CheckpointStore
	tracker     StateTracker
	logger      *slog.Logger
	cfg         Config
	onFallback  func(stage string)
	nodes       []node
}

type Option func(*Engine)

func WithCheckpointStore(store CheckpointStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.checkpoints = store
		}
	}
}

func WithTracker(tracker StateTracker) Option {
	return func(e *Engine) {
		e.tracker = tracker
	}
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithFallbackHook is called each time a stage falls back to non-streaming generation.
func WithFallbackHook(hook func(stage string)) Option {
	return func(e *Engine) {
		e.onFallback = hook
	}
}

func NewEngine(generator llm.TextGenerator, emitter *notify.Emitter, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		generator:   generator,
		emitter:     emitter,
		checkpoints: NewMemoryCheckpointStore(),
		logger:      logger.With("module", "copywriting"),
		cfg:         Config{Temperature: 0.7},
	}

	for _, opt := range opts {
		opt(e)
	}

	e.nodes = []node{
		{
			stage: models.CopyStagePlan, name: "plan", code: events.CodePlanFailed, prompt: planPrompt,
			store: func(s *models.CopywritingState, text string) { s.Plan = &text },
		},
		{
			stage: models.CopyStageDraft, name: "draft", code: events.CodeDraftFailed, prompt: draftPrompt,
			store: func(s *models.CopywritingState, text string) { s.Draft = &text },
		},
		{
			stage: models.CopyStageCritique, name: "critique", code: events.CodeCritiqueFailed, prompt: critiquePrompt,
			store: func(s *models.CopywritingState, text string) { s.Critique = &text },
		},
		{
			stage: models.CopyStageFinalize, name: "finalize", code: events.CodeFinalizeFailed, prompt: finalizePrompt,
			store: func(s *models.CopywritingState, text string) { s.FinalCopy = &text },
		},
	}

	return e
}

// Run executes every stage in order and returns the completed state. On
// failure the partially filled state is returned with the error.
func (e *Engine) Run(ctx context.Context, in Input) (*models.CopywritingState, error) {
	state := &models.CopywritingState{
		ProductName: in.ProductName,
		Features:    append([]string(nil), in.Features...),
		WorkflowID:  in.WorkflowID,
	}

	if guidelines := strings.TrimSpace(in.BrandGuidelines); guidelines != "" {
		state.BrandGuidelines = &guidelines
	}

	for _, n := range e.nodes {
		err := e.runNode(ctx, state, n)
		if err != nil {
			return state, err
		}
	}

	err := e.complete(ctx, state)
	if err != nil {
		return state, err
	}

	return state, nil
}

func (e *Engine) runNode(ctx context.Context, state *models.CopywritingState, n node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := e.logger.With("workflow_id", state.WorkflowID, "stage", n.name)

	prompt, err := n.prompt(state)
	if err != nil {
		return e.fail(ctx, state, n, err)
	}

	e.emitter.Emit(ctx, events.NewThought(state.WorkflowID, n.name, fmt.Sprintf("Starting %s stage", n.name)))

	text, err := e.generate(ctx, logger, state.WorkflowID, n, prompt)
	if err != nil {
		return e.fail(ctx, state, n, err)
	}

	next := state.Clone()

	err = next.TransitionTo(n.stage)
	if err != nil {
		return e.fail(ctx, state, n, services.NewValidationError("copywriting."+n.name, err.Error(), err))
	}

	n.store(next, text)
	*state = *next

	e.emitter.Emit(ctx, events.NewThought(state.WorkflowID, n.name, fmt.Sprintf("Completed %s stage", n.name)))

	if n.stage == models.CopyStageFinalize {
		e.emitter.Emit(ctx, events.NewResult(state.WorkflowID, map[string]any{
			"final_copy": text,
			"stage":      n.name,
		}))
	}

	e.track(state, "running")
	e.checkpoint(ctx, logger, state)

	logger.DebugContext(ctx, "Copywriting stage completed", "chars", len(text))

	return nil
}

func (e *Engine) complete(ctx context.Context, state *models.CopywritingState) error {
	err := state.TransitionTo(models.CopyStageCompleted)
	if err != nil {
		return services.NewValidationError("copywriting.complete", err.Error(), err)
	}

	e.track(state, "completed")
	e.checkpoint(ctx, e.logger.With("workflow_id", state.WorkflowID), state)

	return nil
}

// generate streams the prompt, forwarding reasoning as thoughts, and retries
// once without streaming when the stream fails.
func (e *Engine) generate(ctx context.Context, logger *slog.Logger, workflowID string, n node, prompt string) (string, error) {
	temperature := e.cfg.Temperature
	req := llm.Request{
		Prompt:      prompt,
		Model:       e.cfg.Model,
		Temperature: &temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}

	text, err := e.generator.GenerateStream(ctx, req, func(chunk llm.Chunk) {
		if strings.TrimSpace(chunk.ReasoningContent) == "" {
			return
		}

		e.emitter.Emit(ctx, events.NewThought(workflowID, n.name, chunk.ReasoningContent))
	})
	if err == nil {
		return text, nil
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	logger.WarnContext(ctx, "Streaming generation failed, falling back", "error", err)

	if e.onFallback != nil {
		e.onFallback(n.name)
	}

	return e.generator.Generate(ctx, req)
}

func (e *Engine) fail(ctx context.Context, state *models.CopywritingState, n node, err error) error {
	if services.IsCancelled(err) {
		return err
	}

	e.emitter.Emit(ctx, events.NewError(state.WorkflowID, n.code, err.Error()))
	e.track(state, "failed")

	return &services.StageError{Code: n.code, Stage: n.name, Err: err}
}

func (e *Engine) track(state *models.CopywritingState, status string) {
	if e.tracker == nil {
		return
	}

	e.tracker.SetState(state.WorkflowID, StateKey, map[string]any{
		"stage":  state.CurrentStage.String(),
		"status": status,
	})
}

func (e *Engine) checkpoint(ctx context.Context, logger *slog.Logger, state *models.CopywritingState) {
	err := e.checkpoints.Save(ctx, state)
	if err != nil {
		logger.WarnContext(ctx, "Failed to save copywriting checkpoint", "error", err)
	}
}
