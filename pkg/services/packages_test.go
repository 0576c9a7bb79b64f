package services

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/persistence/file"
	"github.com/dukex/promoflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorkflows struct {
	startErr  error
	snapshots map[string]registry.Snapshot
	started   []models.GenerationRequest
	running   map[string]bool
}

func newFakeWorkflows() *fakeWorkflows {
	return &fakeWorkflows{snapshots: map[string]registry.Snapshot{}, running: map[string]bool{}}
}

func (f *fakeWorkflows) StartAsync(_ context.Context, req models.GenerationRequest, _ string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}

	f.started = append(f.started, req)

	return "wf-new", nil
}

func (f *fakeWorkflows) GetStatus(workflowID string) (registry.Snapshot, bool) {
	s, ok := f.snapshots[workflowID]

	return s, ok
}

func (f *fakeWorkflows) Cancel(workflowID string) bool {
	return f.running[workflowID]
}

func TestPackages_Start(t *testing.T) {
	workflows := newFakeWorkflows()
	svc := NewPackages(file.NewPersistence(t.TempDir()), workflows, log.Discard())

	_, err := svc.Start(context.Background(), models.GenerationRequest{BackgroundContext: "c"}, "u")
	assert.True(t, IsValidationError(err))
	assert.Empty(t, workflows.started)

	id, err := svc.Start(context.Background(), models.GenerationRequest{ImageURL: "https://cdn/a.png", BackgroundContext: "c"}, "u")
	require.NoError(t, err)
	assert.Equal(t, "wf-new", id)
	assert.Len(t, workflows.started, 1)

	workflows.startErr = registry.ErrAlreadyRunning
	_, err = svc.Start(context.Background(), models.GenerationRequest{ImageURL: "https://cdn/a.png", BackgroundContext: "c"}, "u")
	assert.True(t, IsConflictError(err))
	assert.ErrorIs(t, err, registry.ErrAlreadyRunning)
}

func TestPackages_GetPackage(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	svc := NewPackages(store, newFakeWorkflows(), log.Discard())

	_, err := svc.GetPackage(ctx, "missing")
	assert.True(t, IsNotFoundError(err))

	now := time.Now().UTC()
	require.NoError(t, store.PackageRepository().Create(ctx, models.NewWorkflowRecord("pkg-1", "wf-1", "", nil, now)))
	require.NoError(t, store.ArtifactRepository().Save(ctx, &models.Artifact{
		ID: "art-1", WorkflowID: "wf-1", Type: models.ArtifactTypeCopy, Content: "copy", CreatedAt: now,
	}))

	details, err := svc.GetPackage(ctx, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", details.WorkflowID)
	require.Len(t, details.ArtifactDetails, 1)
	assert.Equal(t, "art-1", details.ArtifactDetails[0].ID)
}

func TestPackages_GetWorkflow(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	workflows := newFakeWorkflows()
	svc := NewPackages(store, workflows, log.Discard())

	require.NoError(t, store.PackageRepository().Create(ctx, models.NewWorkflowRecord("pkg-1", "wf-durable", "", nil, time.Now())))
	workflows.snapshots["wf-live"] = registry.Snapshot{WorkflowID: "wf-live", Status: models.WorkflowStatusRunning}

	view, err := svc.GetWorkflow(ctx, "wf-durable")
	require.NoError(t, err)
	assert.Nil(t, view.Live)
	assert.Equal(t, "pkg-1", view.Record.ID)

	view, err = svc.GetWorkflow(ctx, "wf-live")
	require.NoError(t, err)
	assert.Nil(t, view.Record)
	assert.Equal(t, models.WorkflowStatusRunning, view.Live.Status)

	_, err = svc.GetWorkflow(ctx, "wf-unknown")
	assert.True(t, IsNotFoundError(err))
}

func TestPackages_Cancel(t *testing.T) {
	workflows := newFakeWorkflows()
	workflows.running["wf-running"] = true
	workflows.snapshots["wf-running"] = registry.Snapshot{}
	workflows.snapshots["wf-done"] = registry.Snapshot{Status: models.WorkflowStatusCompleted}

	svc := NewPackages(file.NewPersistence(t.TempDir()), workflows, log.Discard())

	assert.NoError(t, svc.Cancel(context.Background(), "wf-running"))
	assert.True(t, IsConflictError(svc.Cancel(context.Background(), "wf-done")))
	assert.True(t, IsNotFoundError(svc.Cancel(context.Background(), "wf-unknown")))
}
