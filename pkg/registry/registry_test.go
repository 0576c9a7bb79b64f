package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorEvents struct {
	mu    sync.Mutex
	codes map[string][]string
}

func (e *errorEvents) notifier() notify.Notifier {
	return notify.NotifierFunc(func(_ context.Context, event events.Event) error {
		errEvent, ok := event.(*events.Error)
		if !ok {
			return nil
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		e.codes[event.GetWorkflowID()] = append(e.codes[event.GetWorkflowID()], errEvent.Code)

		return nil
	})
}

func (e *errorEvents) get(workflowID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.codes[workflowID]...)
}

func newRegistry(t *testing.T, runner Runner, opts ...Option) (*Registry, *errorEvents) {
	t.Helper()

	recorded := &errorEvents{codes: make(map[string][]string)}
	emitter := notify.NewEmitter(recorded.notifier(), ratelimit.NewReporter(time.Minute), log.Discard())

	reg := New(runner, emitter, log.Discard(), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = reg.Shutdown(ctx)
	})

	return reg, recorded
}

func waitFinished(t *testing.T, reg *Registry, workflowID string) Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		snapshot, ok := reg.GetStatus(workflowID)

		return ok && !snapshot.Running
	}, 2*time.Second, 5*time.Millisecond)

	snapshot, _ := reg.GetStatus(workflowID)

	return snapshot
}

func blockingRunner(started chan<- string) Runner {
	return RunnerFunc(func(ctx context.Context, req models.GenerationRequest, _ string) (*models.RunResult, error) {
		started <- req.WorkflowID
		<-ctx.Done()

		return nil, ctx.Err()
	})
}

func TestRegistry_StartAsync_Completes(t *testing.T) {
	reg, recorded := newRegistry(t, RunnerFunc(func(_ context.Context, req models.GenerationRequest, userID string) (*models.RunResult, error) {
		assert.Equal(t, "user-1", userID)

		return &models.RunResult{
			WorkflowID: req.WorkflowID,
			Status:     models.WorkflowStatusCompleted,
			Stage:      models.StageDone,
		}, nil
	}))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, workflowID)

	snapshot := waitFinished(t, reg, workflowID)

	assert.Equal(t, models.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, models.StageDone, snapshot.CurrentStage)
	assert.NotNil(t, snapshot.FinishedAt)
	assert.Empty(t, recorded.get(workflowID))
}

func TestRegistry_StartAsync_ApprovalRequired(t *testing.T) {
	reg, _ := newRegistry(t, RunnerFunc(func(_ context.Context, req models.GenerationRequest, _ string) (*models.RunResult, error) {
		return &models.RunResult{Status: models.WorkflowStatusApprovalRequired, Stage: models.StageApproval}, nil
	}))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "wf-approval"}, "")
	require.NoError(t, err)
	assert.Equal(t, "wf-approval", workflowID)

	snapshot := waitFinished(t, reg, workflowID)
	assert.Equal(t, models.WorkflowStatusApprovalRequired, snapshot.Status)
	assert.Equal(t, models.StageApproval, snapshot.CurrentStage)
}

func TestRegistry_StartAsync_Failure(t *testing.T) {
	tests := []struct {
		name    string
		runner  Runner
		message string
	}{
		{
			name: "error",
			runner: RunnerFunc(func(context.Context, models.GenerationRequest, string) (*models.RunResult, error) {
				return nil, errors.New("analysis exploded")
			}),
			message: "analysis exploded",
		},
		{
			name: "panic",
			runner: RunnerFunc(func(context.Context, models.GenerationRequest, string) (*models.RunResult, error) {
				panic("nil map")
			}),
			message: "workflow panicked: nil map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, recorded := newRegistry(t, tt.runner)

			workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
			require.NoError(t, err)

			snapshot := waitFinished(t, reg, workflowID)

			assert.Equal(t, models.WorkflowStatusFailed, snapshot.Status)
			assert.Equal(t, tt.message, snapshot.ErrorMessage)
			assert.Equal(t, []string{events.CodeWorkflowFailed}, recorded.get(workflowID))
		})
	}
}

func TestRegistry_Cancel_Running(t *testing.T) {
	started := make(chan string, 1)
	reg, recorded := newRegistry(t, blockingRunner(started))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.NoError(t, err)
	<-started

	assert.True(t, reg.Cancel(workflowID))

	snapshot, ok := reg.GetStatus(workflowID)
	require.True(t, ok)
	assert.Equal(t, models.WorkflowStatusCancelled, snapshot.Status)

	snapshot = waitFinished(t, reg, workflowID)
	assert.Equal(t, models.WorkflowStatusCancelled, snapshot.Status)
	assert.Equal(t, []string{events.CodeWorkflowCancelled}, recorded.get(workflowID))

	assert.False(t, reg.Cancel(workflowID))
}

func TestRegistry_Cancel_FinishedOrUnknown(t *testing.T) {
	reg, _ := newRegistry(t, RunnerFunc(func(context.Context, models.GenerationRequest, string) (*models.RunResult, error) {
		return &models.RunResult{Status: models.WorkflowStatusCompleted, Stage: models.StageDone}, nil
	}))

	assert.False(t, reg.Cancel("missing"))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.NoError(t, err)
	waitFinished(t, reg, workflowID)

	assert.False(t, reg.Cancel(workflowID))

	snapshot, _ := reg.GetStatus(workflowID)
	assert.Equal(t, models.WorkflowStatusCompleted, snapshot.Status)
}

func TestRegistry_Cancel_AfterFinalWriteKeepsResult(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})

	reg, recorded := newRegistry(t, RunnerFunc(func(_ context.Context, req models.GenerationRequest, _ string) (*models.RunResult, error) {
		started <- req.WorkflowID
		<-release

		return &models.RunResult{WorkflowID: req.WorkflowID, Status: models.WorkflowStatusCompleted, Stage: models.StageDone}, nil
	}))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.NoError(t, err)
	<-started

	assert.True(t, reg.Cancel(workflowID))
	close(release)

	snapshot := waitFinished(t, reg, workflowID)
	assert.Equal(t, models.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, models.StageDone, snapshot.CurrentStage)
	assert.Empty(t, recorded.get(workflowID))
}

func TestRegistry_StartAsync_DuplicateRunning(t *testing.T) {
	started := make(chan string, 1)
	reg, _ := newRegistry(t, blockingRunner(started))

	_, err := reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "wf-dup"}, "")
	require.NoError(t, err)
	<-started

	_, err = reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "wf-dup"}, "")
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRegistry_TracksStageAndState(t *testing.T) {
	started := make(chan string, 1)
	reg, _ := newRegistry(t, blockingRunner(started))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.NoError(t, err)
	<-started

	reg.SetStage(workflowID, models.StageCopywriting, models.WorkflowStatusRunning)
	reg.SetState(workflowID, "copywriting", map[string]any{"stage": "DRAFT", "status": "running"})
	reg.SetState("unknown", "copywriting", "ignored")

	snapshot, ok := reg.GetStatus(workflowID)
	require.True(t, ok)
	assert.Equal(t, models.StageCopywriting, snapshot.CurrentStage)
	assert.Equal(t, map[string]any{"stage": "DRAFT", "status": "running"}, snapshot.LastState["copywriting"])

	snapshot.LastState["copywriting"] = "mutated"
	again, _ := reg.GetStatus(workflowID)
	assert.NotEqual(t, "mutated", again.LastState["copywriting"])

	_, ok = reg.GetStatus("unknown")
	assert.False(t, ok)
}

func TestRegistry_IndependentWorkflows(t *testing.T) {
	reg, _ := newRegistry(t, RunnerFunc(func(_ context.Context, req models.GenerationRequest, _ string) (*models.RunResult, error) {
		if req.Metadata["fail"] == true {
			return nil, errors.New("boom")
		}

		return &models.RunResult{Status: models.WorkflowStatusCompleted, Stage: models.StageDone}, nil
	}))

	ids := make([]string, 20)

	for i := range ids {
		id, err := reg.StartAsync(context.Background(), models.GenerationRequest{
			WorkflowID: fmt.Sprintf("wf-%d", i),
			Metadata:   map[string]any{"fail": i%2 == 0},
		}, "")
		require.NoError(t, err)

		ids[i] = id
	}

	for i, id := range ids {
		snapshot := waitFinished(t, reg, id)

		if i%2 == 0 {
			assert.Equal(t, models.WorkflowStatusFailed, snapshot.Status)
		} else {
			assert.Equal(t, models.WorkflowStatusCompleted, snapshot.Status)
		}
	}

	assert.Equal(t, 20, reg.Len())
}

func TestRegistry_Prune(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()

		now = now.Add(d)
	}

	started := make(chan string, 1)
	release := make(chan struct{})

	reg, _ := newRegistry(t, RunnerFunc(func(ctx context.Context, req models.GenerationRequest, _ string) (*models.RunResult, error) {
		if req.WorkflowID == "running" {
			started <- req.WorkflowID
			<-ctx.Done()

			return nil, ctx.Err()
		}

		<-release

		return &models.RunResult{Status: models.WorkflowStatusCompleted, Stage: models.StageDone}, nil
	}), WithClock(clock))

	_, err := reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "old"}, "")
	require.NoError(t, err)
	close(release)
	waitFinished(t, reg, "old")

	advance(2 * time.Hour)

	_, err = reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "fresh"}, "")
	require.NoError(t, err)
	waitFinished(t, reg, "fresh")

	_, err = reg.StartAsync(context.Background(), models.GenerationRequest{WorkflowID: "running"}, "")
	require.NoError(t, err)
	<-started

	advance(30 * time.Minute)

	assert.Equal(t, 1, reg.Prune(time.Hour))

	_, ok := reg.GetStatus("old")
	assert.False(t, ok)

	_, ok = reg.GetStatus("fresh")
	assert.True(t, ok)

	_, ok = reg.GetStatus("running")
	assert.True(t, ok)
}

func TestRegistry_StartPruner_InvalidSchedule(t *testing.T) {
	reg, _ := newRegistry(t, RunnerFunc(func(context.Context, models.GenerationRequest, string) (*models.RunResult, error) {
		return nil, nil
	}))

	require.Error(t, reg.StartPruner("every now and then", time.Hour))
	require.NoError(t, reg.StartPruner("@every 1h", time.Hour))
}

func TestRegistry_Shutdown(t *testing.T) {
	started := make(chan string, 1)
	reg, recorded := newRegistry(t, blockingRunner(started))

	workflowID, err := reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, reg.Shutdown(ctx))

	snapshot, _ := reg.GetStatus(workflowID)
	assert.False(t, snapshot.Running)
	assert.Equal(t, models.WorkflowStatusCancelled, snapshot.Status)
	assert.Equal(t, []string{events.CodeWorkflowCancelled}, recorded.get(workflowID))

	_, err = reg.StartAsync(context.Background(), models.GenerationRequest{}, "")
	require.ErrorIs(t, err, ErrShuttingDown)
}
