// Package registry tracks workflows started in this process: their live
// status snapshot and the handle used to cancel them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	ErrAlreadyRunning = errors.New("workflow already running")
	ErrShuttingDown   = errors.New("registry is shutting down")
)

// Runner executes one workflow to completion.
type Runner interface {
	Run(ctx context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error)

func (f RunnerFunc) Run(ctx context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error) {
	return f(ctx, req, userID)
}

// Snapshot is the in-memory view of a workflow.
type Snapshot struct {
	WorkflowID   string                `json:"workflow_id"`
	Status       models.WorkflowStatus `json:"status"`
	CurrentStage models.Stage          `json:"current_stage"`
	LastState    map[string]any        `json:"last_state,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Running      bool                  `json:"running"`
	StartedAt    time.Time             `json:"started_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
}

type entry struct {
	snapshot        Snapshot
	cancel          context.CancelFunc
	cancelRequested bool
	finishing       bool
}

type Registry struct {
	runner  Runner
	emitter *notify.Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	cron *cron.Cron
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func New(runner Runner, emitter *notify.Emitter, logger *slog.Logger, opts ...Option) *Registry {
	baseCtx, baseCancel := context.WithCancel(context.Background())

	r := &Registry{
		runner:     runner,
		emitter:    emitter,
		logger:     logger.With("module", "registry"),
		now:        time.Now,
		entries:    make(map[string]*entry),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// StartAsync registers the workflow and runs it in the background. The
// workflow id is taken from the request or generated, and returned.
func (r *Registry) StartAsync(ctx context.Context, req models.GenerationRequest, userID string) (string, error) {
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	workflowID := req.WorkflowID
	now := r.now()

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return "", ErrShuttingDown
	}

	if existing, ok := r.entries[workflowID]; ok && existing.snapshot.Running {
		r.mu.Unlock()

		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, workflowID)
	}

	taskCtx, cancel := context.WithCancel(r.baseCtx)

	r.entries[workflowID] = &entry{
		snapshot: Snapshot{
			WorkflowID:   workflowID,
			Status:       models.WorkflowStatusRunning,
			CurrentStage: models.StageInit,
			LastState:    make(map[string]any),
			Running:      true,
			StartedAt:    now,
			UpdatedAt:    now,
		},
		cancel: cancel,
	}

	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.WorkflowStarted()
	r.logger.InfoContext(ctx, "Workflow started", "workflow_id", workflowID)

	go r.execute(taskCtx, req, userID)

	return workflowID, nil
}

func (r *Registry) execute(ctx context.Context, req models.GenerationRequest, userID string) {
	defer r.wg.Done()

	result, err := r.run(ctx, req, userID)

	r.finish(ctx, req.WorkflowID, result, err)
}

func (r *Registry) run(ctx context.Context, req models.GenerationRequest, userID string) (result *models.RunResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("workflow panicked: %v", rec)
		}
	}()

	return r.runner.Run(ctx, req, userID)
}

func (r *Registry) finish(ctx context.Context, workflowID string, result *models.RunResult, err error) {
	logger := r.logger.With("workflow_id", workflowID)

	r.mu.Lock()

	e, ok := r.entries[workflowID]
	if !ok {
		r.mu.Unlock()

		return
	}

	e.finishing = true

	var event events.Event

	// a run that returned cleanly has already written its final status, even
	// when a cancel arrived after that write
	switch {
	case err == nil && result != nil:
		e.snapshot.Status = result.Status
		e.snapshot.CurrentStage = result.Stage
	case e.cancelRequested || (err != nil && ctx.Err() != nil):
		e.snapshot.Status = models.WorkflowStatusCancelled
		event = events.NewError(workflowID, events.CodeWorkflowCancelled, "Workflow was cancelled")
	case err != nil:
		e.snapshot.Status = models.WorkflowStatusFailed
		e.snapshot.ErrorMessage = err.Error()
		event = events.NewError(workflowID, events.CodeWorkflowFailed, err.Error())
	default:
		e.snapshot.Status = models.WorkflowStatusCompleted
	}

	status := e.snapshot.Status
	r.mu.Unlock()

	if event != nil {
		r.emitter.Emit(ctx, event)
	}

	r.mu.Lock()
	now := r.now()
	e.cancel()
	e.cancel = nil
	e.snapshot.Running = false
	e.snapshot.UpdatedAt = now
	e.snapshot.FinishedAt = &now
	r.mu.Unlock()

	r.metrics.WorkflowFinished(string(status))

	if status == models.WorkflowStatusFailed {
		logger.ErrorContext(ctx, "Workflow failed", "error", err)

		return
	}

	logger.InfoContext(ctx, "Workflow finished", "status", status)
}

// GetStatus returns a copy of the snapshot, or false when the id is unknown.
func (r *Registry) GetStatus(workflowID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workflowID]
	if !ok {
		return Snapshot{}, false
	}

	snapshot := e.snapshot
	snapshot.LastState = maps.Clone(e.snapshot.LastState)

	return snapshot, true
}

// Cancel signals a running workflow to stop. It returns false for unknown or
// finished workflows.
func (r *Registry) Cancel(workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workflowID]
	if !ok || e.cancel == nil || e.cancelRequested || e.finishing {
		return false
	}

	e.cancelRequested = true
	e.cancel()
	e.snapshot.Status = models.WorkflowStatusCancelled
	e.snapshot.UpdatedAt = r.now()

	r.logger.Info("Workflow cancellation requested", "workflow_id", workflowID)

	return true
}

// SetState records sub-workflow progress under key.
func (r *Registry) SetState(workflowID, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workflowID]
	if !ok {
		return
	}

	if e.snapshot.LastState == nil {
		e.snapshot.LastState = make(map[string]any)
	}

	e.snapshot.LastState[key] = value
	e.snapshot.UpdatedAt = r.now()
}

// SetStage moves the snapshot to stage. A cancelled snapshot keeps its status.
func (r *Registry) SetStage(workflowID string, stage models.Stage, status models.WorkflowStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workflowID]
	if !ok {
		return
	}

	e.snapshot.CurrentStage = stage

	if !e.cancelRequested && status != "" {
		e.snapshot.Status = status
	}

	e.snapshot.UpdatedAt = r.now()
}

// Prune drops finished snapshots older than retention and returns how many were removed.
func (r *Registry) Prune(retention time.Duration) int {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0

	for id, e := range r.entries {
		if e.cancel != nil || e.snapshot.FinishedAt == nil {
			continue
		}

		if e.snapshot.FinishedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}

	return removed
}

// StartPruner runs Prune on a cron schedule until Shutdown.
func (r *Registry) StartPruner(schedule string, retention time.Duration) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(schedule, func() {
		removed := r.Prune(retention)
		if removed > 0 {
			r.logger.Info("Pruned finished workflows", "count", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()

	return nil
}

// Len returns the number of tracked workflows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Shutdown refuses new workflows, cancels the running ones and waits for
// them to finish or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	c := r.cron
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	r.baseCancel()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
