package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/copywriting"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/mocks"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const analysisJSON = `{"product_name":"Trail Bottle","features":["insulated","leak proof"],"suggested_scenes":["mountain","desk"]}`

func TestNewPersistence_File(t *testing.T) {
	p := NewPersistence(context.Background(), log.Discard(), "file://"+t.TempDir())

	_, ok := p.(*file.Persistence)
	assert.True(t, ok)
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestNewEventBus(t *testing.T) {
	bus := NewEventBus("memory", log.Discard())
	require.NotNil(t, bus)
	assert.NoError(t, bus.Close())

	assert.Panics(t, func() { NewEventBus("carrier-pigeon", log.Discard()) })
}

func TestRouteNotifications(t *testing.T) {
	handler := func(context.Context, events.Event) error { return nil }

	t.Run("registers every event type then subscribes", func(t *testing.T) {
		bus := &mocks.MockEventBus{}
		for _, eventType := range events.All() {
			bus.On("Handle", eventType, mock.Anything).Return(nil).Once()
		}
		bus.On("Subscribe", mock.Anything).Return(nil).Once()

		require.NoError(t, RouteNotifications(context.Background(), bus, handler))
		bus.AssertExpectations(t)
	})

	t.Run("stops at the first registration failure", func(t *testing.T) {
		bus := &mocks.MockEventBus{}
		bus.On("Handle", events.ThoughtEventType, mock.Anything).Return(errors.New("closed")).Once()

		err := RouteNotifications(context.Background(), bus, handler)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
		bus.AssertNotCalled(t, "Subscribe", mock.Anything)
	})

	t.Run("reports subscription failure", func(t *testing.T) {
		bus := &mocks.MockEventBus{}
		bus.On("Handle", mock.Anything, mock.Anything).Return(nil)
		bus.On("Subscribe", mock.Anything).Return(errors.New("broker down")).Once()

		err := RouteNotifications(context.Background(), bus, handler)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})
}

func TestNewCheckpointStore_DefaultsToMemory(t *testing.T) {
	store, closeFn, err := NewCheckpointStore(context.Background(), "", config.Default().Copywriting)
	require.NoError(t, err)
	assert.IsType(t, &copywriting.MemoryCheckpointStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = NewCheckpointStore(context.Background(), "://not-a-url", config.Default().Copywriting)
	assert.Error(t, err)
}

func TestNewPipeline_RunsWorkflowToApproval(t *testing.T) {
	ctx := context.Background()

	generator := &mocks.MockTextGenerator{}
	generator.On("Generate", mock.Anything, mock.Anything).Return(analysisJSON, nil)
	generator.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
		Return("Trail Bottle keeps water ice cold for a full day on the mountain.", nil)

	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	store := file.NewPersistence(t.TempDir())

	pipeline, err := NewPipeline(PipelineDeps{
		Config:      &cfg,
		Persistence: store,
		Metrics:     metrics.New(),
		Generator:   generator,
		Logger:      log.Discard(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = pipeline.Registry.Shutdown(shutdownCtx)
	})

	workflowID, err := pipeline.Packages.Start(ctx, models.GenerationRequest{
		ImageURL:          "https://cdn.example.com/bottle.png",
		BackgroundContext: "Insulated bottle for hikers",
		Options:           models.GenerationOptions{RequireApproval: true},
	}, "user-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, ok := pipeline.Registry.GetStatus(workflowID)

		return ok && !snapshot.Running
	}, 5*time.Second, 10*time.Millisecond)

	snapshot, _ := pipeline.Registry.GetStatus(workflowID)
	assert.Equal(t, models.WorkflowStatusApprovalRequired, snapshot.Status, snapshot.ErrorMessage)
	assert.Equal(t, models.StageApproval, snapshot.CurrentStage)
	assert.Contains(t, snapshot.LastState, "copywriting")

	record, err := store.PackageRepository().GetByWorkflowID(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusApprovalRequired, record.Status)
	assert.NotEmpty(t, record.Artifacts[string(models.ArtifactTypeVideo)])

	approved, err := pipeline.Approvals.Approve(ctx, record.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, approved.Status)
	assert.Equal(t, 100, approved.Progress.Percentage)
}
