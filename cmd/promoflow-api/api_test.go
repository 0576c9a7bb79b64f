package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/cmd"
	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/mocks"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence/file"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()

	persistence := file.NewPersistence(t.TempDir())
	m := metrics.New()

	pipeline, err := cmd.NewPipeline(cmd.PipelineDeps{
		Config:      &cfg,
		Persistence: persistence,
		Metrics:     m,
		Generator:   &mocks.MockTextGenerator{},
		Logger:      log.Discard(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = pipeline.Registry.Shutdown(ctx)
	})

	return NewAPI(log.Discard(), persistence, pipeline, m).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Promoflow API", body)
}

func TestAPI_HealthEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"healthy"`)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/metrics")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "promoflow_workflows_running")
}

func TestAPI_UnknownPackage(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/packages/does-not-exist")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "not_found")
}

func TestServe_RecordsCancelledWorkflowsBeforeReturning(t *testing.T) {
	analyzing := make(chan struct{})

	generator := &mocks.MockTextGenerator{}
	generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(analyzing)
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.Canceled).Once()

	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	persistence := file.NewPersistence(t.TempDir())

	pipeline, err := cmd.NewPipeline(cmd.PipelineDeps{
		Config:      &cfg,
		Persistence: persistence,
		Generator:   generator,
		Logger:      log.Discard(),
	})
	require.NoError(t, err)

	workflowID, err := pipeline.Packages.Start(context.Background(), models.GenerationRequest{
		ImageURL:          "https://cdn.example.com/bottle.png",
		BackgroundContext: "Insulated bottle for hikers",
	}, "user-1")
	require.NoError(t, err)
	<-analyzing

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})

	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, log.Discard(),
			func() error {
				<-released

				return nil
			},
			shutdownStep{name: "http", stop: func(context.Context) error {
				close(released)

				return nil
			}},
			shutdownStep{name: "workflows", stop: pipeline.Registry.Shutdown},
		)
	}()

	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}

	record, err := persistence.PackageRepository().GetByWorkflowID(context.Background(), workflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCancelled, record.Status)

	snapshot, ok := pipeline.Registry.GetStatus(workflowID)
	require.True(t, ok)
	assert.False(t, snapshot.Running)
}

func TestServe_StartFailureStillRunsEveryStep(t *testing.T) {
	var stopped []string

	err := serve(context.Background(), log.Discard(),
		func() error { return errors.New("address already in use") },
		shutdownStep{name: "http", stop: func(context.Context) error {
			stopped = append(stopped, "http")

			return nil
		}},
		shutdownStep{name: "workflows", stop: func(context.Context) error {
			stopped = append(stopped, "workflows")

			return errors.New("timed out")
		}},
	)

	require.EqualError(t, err, "address already in use")
	assert.Equal(t, []string{"http", "workflows"}, stopped)
}
