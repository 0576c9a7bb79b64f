package hitl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/persistence/file"
	"github.com/dukex/promoflow/pkg/ratelimit"
	"github.com/dukex/promoflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedStart struct {
	req    models.GenerationRequest
	userID string
}

type fakeStarter struct {
	mu     sync.Mutex
	starts []recordedStart
	err    error
}

func (s *fakeStarter) StartAsync(_ context.Context, req models.GenerationRequest, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	s.starts = append(s.starts, recordedStart{req: req, userID: userID})

	return req.WorkflowID, nil
}

type fixture struct {
	packages persistence.PackageRepository
	events   []events.Event
	mu       sync.Mutex
}

func (f *fixture) Notify(_ context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)

	return nil
}

func (f *fixture) ofType(eventType events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []events.Event

	for _, event := range f.events {
		if event.GetType() == eventType {
			out = append(out, event)
		}
	}

	return out
}

func newManager(t *testing.T, opts ...Option) (*Manager, *fixture) {
	t.Helper()

	f := &fixture{packages: file.NewPersistence(t.TempDir()).PackageRepository()}
	emitter := notify.NewEmitter(f, ratelimit.NewReporter(time.Minute), log.Discard())

	return NewManager(f.packages, emitter, log.Discard(), opts...), f
}

func seed(t *testing.T, f *fixture, id string, status models.WorkflowStatus, stage models.Stage) {
	t.Helper()

	ctx := context.Background()
	record := models.NewWorkflowRecord(id, "wf-"+id, "user-1", map[string]any{
		"image_url":          "https://cdn/bottle.png",
		"background_context": "Outdoor gear",
		"options": map[string]any{
			"require_approval":   true,
			"video_duration_sec": 20,
			"brand_guidelines":   "bold",
		},
	}, time.Now().UTC())

	require.NoError(t, f.packages.Create(ctx, record))
	require.NoError(t, f.packages.UpdateStatus(ctx, id, models.StatusUpdate{Status: status, Stage: stage}))
}

func TestManager_Approve(t *testing.T) {
	manager, f := newManager(t)
	seed(t, f, "pkg-1", models.WorkflowStatusApprovalRequired, models.StageApproval)

	record, err := manager.Approve(context.Background(), "pkg-1", "looks great")

	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, record.Status)
	assert.Equal(t, models.ApprovalStatusApproved, record.ApprovalStatus)
	assert.Equal(t, models.StageDone, record.Stage)
	assert.Equal(t, 100, record.Progress.Percentage)
	assert.NotNil(t, record.CompletedAt)

	results := f.ofType(events.ResultEventType)
	require.Len(t, results, 1)
	assert.Equal(t, "looks great", results[0].(*events.Result).Data["comment"])

	_, err = manager.Approve(context.Background(), "pkg-1", "")
	assert.True(t, services.IsValidationError(err))
}

func TestManager_Reject(t *testing.T) {
	tests := []struct {
		name    string
		comment string
		want    string
	}{
		{name: "with comment", comment: "needs rework", want: "Rejected: needs rework"},
		{name: "without comment", comment: "", want: "Rejected: No reason provided"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, f := newManager(t)
			seed(t, f, "pkg-1", models.WorkflowStatusApprovalRequired, models.StageApproval)

			record, err := manager.Reject(context.Background(), "pkg-1", tt.comment)

			require.NoError(t, err)
			assert.Equal(t, models.WorkflowStatusFailed, record.Status)
			assert.Equal(t, models.ApprovalStatusRejected, record.ApprovalStatus)
			assert.Equal(t, models.StageApproval, record.Stage)
			assert.Equal(t, tt.want, record.ErrorMessage)
		})
	}
}

func TestManager_DecisionRequiresApprovalRequired(t *testing.T) {
	statuses := []models.WorkflowStatus{
		models.WorkflowStatusRunning,
		models.WorkflowStatusCompleted,
		models.WorkflowStatusFailed,
		models.WorkflowStatusCancelled,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			manager, f := newManager(t)
			seed(t, f, "pkg-1", status, models.StageQAReview)

			_, err := manager.Approve(context.Background(), "pkg-1", "")
			assert.True(t, services.IsValidationError(err))

			_, err = manager.Reject(context.Background(), "pkg-1", "")
			assert.True(t, services.IsValidationError(err))

			record, err := f.packages.GetByID(context.Background(), "pkg-1")
			require.NoError(t, err)
			assert.Equal(t, status, record.Status)
			assert.Equal(t, models.ApprovalStatusPending, record.ApprovalStatus)
		})
	}
}

func TestManager_Decision_UnknownPackage(t *testing.T) {
	manager, _ := newManager(t)

	_, err := manager.Approve(context.Background(), "missing", "")
	assert.True(t, services.IsValidationError(err))
	assert.True(t, services.IsNotFoundError(err))

	_, err = manager.Reject(context.Background(), "missing", "")
	assert.True(t, services.IsValidationError(err))
	assert.True(t, services.IsNotFoundError(err))
}

// statusWriteFailure fails every status write and delegates everything else.
type statusWriteFailure struct {
	persistence.PackageRepository
}

func (statusWriteFailure) UpdateStatus(context.Context, string, models.StatusUpdate) error {
	return errors.New("disk full")
}

func TestManager_Decision_StatusWriteFailureRestoresApproval(t *testing.T) {
	decisions := map[string]func(*Manager) error{
		"approve": func(m *Manager) error {
			_, err := m.Approve(context.Background(), "pkg-1", "ok")

			return err
		},
		"reject": func(m *Manager) error {
			_, err := m.Reject(context.Background(), "pkg-1", "no")

			return err
		},
	}

	for name, decide := range decisions {
		t.Run(name, func(t *testing.T) {
			_, f := newManager(t)
			seed(t, f, "pkg-1", models.WorkflowStatusApprovalRequired, models.StageApproval)

			emitter := notify.NewEmitter(f, ratelimit.NewReporter(time.Minute), log.Discard())
			manager := NewManager(statusWriteFailure{f.packages}, emitter, log.Discard())

			err := decide(manager)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "disk full")

			record, err := f.packages.GetByID(context.Background(), "pkg-1")
			require.NoError(t, err)
			assert.Equal(t, models.WorkflowStatusApprovalRequired, record.Status)
			assert.Equal(t, models.ApprovalStatusPending, record.ApprovalStatus)
			assert.Empty(t, f.ofType(events.ResultEventType))
		})
	}
}

func TestManager_RequestApproval(t *testing.T) {
	manager, f := newManager(t)
	seed(t, f, "pkg-1", models.WorkflowStatusRunning, models.StageQAReview)

	record, err := manager.RequestApproval(context.Background(), "pkg-1", "low QA score", 0.4)

	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusApprovalRequired, record.Status)
	assert.Equal(t, models.StageApproval, record.Stage)
	assert.Equal(t, 95, record.Progress.Percentage)

	approvals := f.ofType(events.ApprovalRequiredEventType)
	require.Len(t, approvals, 1)

	event := approvals[0].(*events.ApprovalRequired)
	assert.Equal(t, "pkg-1", event.PackageID)
	assert.Equal(t, "wf-pkg-1", event.GetWorkflowID())
	assert.Equal(t, "low QA score", event.Reason)
	assert.InDelta(t, 0.4, event.QAScore, 0.0001)
}

func TestManager_RequestApproval_Invalid(t *testing.T) {
	manager, f := newManager(t)
	seed(t, f, "done", models.WorkflowStatusCompleted, models.StageDone)

	_, err := manager.RequestApproval(context.Background(), "missing", "", 0)
	assert.True(t, services.IsValidationError(err))
	assert.True(t, services.IsNotFoundError(err))

	_, err = manager.RequestApproval(context.Background(), "done", "", 0)
	assert.True(t, services.IsValidationError(err))
	assert.Empty(t, f.ofType(events.ApprovalRequiredEventType))
}

func TestManager_Regenerate(t *testing.T) {
	starter := &fakeStarter{}
	manager, f := newManager(t, WithStarter(starter))
	seed(t, f, "pkg-1", models.WorkflowStatusFailed, models.StageApproval)

	result, err := manager.Regenerate(context.Background(), "pkg-1", TargetImages, "too dark")

	require.NoError(t, err)
	assert.NotEmpty(t, result.WorkflowID)
	assert.NotEqual(t, "wf-pkg-1", result.WorkflowID)
	assert.Equal(t, models.WorkflowStatusRunning, result.Status)
	assert.Equal(t, TargetImages, result.Target)

	require.Len(t, starter.starts, 1)
	started := starter.starts[0]
	assert.Equal(t, "user-1", started.userID)
	assert.Equal(t, result.WorkflowID, started.req.WorkflowID)
	assert.Equal(t, "https://cdn/bottle.png", started.req.ImageURL)
	assert.Equal(t, "Outdoor gear", started.req.BackgroundContext)
	assert.True(t, started.req.Options.RequireApproval)
	assert.Equal(t, 20, started.req.Options.VideoDurationSec)
	assert.Equal(t, "bold", started.req.Options.BrandGuidelines)
	assert.Equal(t, "images", started.req.Metadata["target"])
	assert.Equal(t, "too dark", started.req.Metadata["reason"])
	require.NoError(t, started.req.Validate())

	original, err := f.packages.GetByID(context.Background(), "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusFailed, original.Status)
}

func TestManager_Regenerate_Errors(t *testing.T) {
	t.Run("no starter", func(t *testing.T) {
		manager, f := newManager(t)
		seed(t, f, "pkg-1", models.WorkflowStatusCompleted, models.StageDone)

		_, err := manager.Regenerate(context.Background(), "pkg-1", TargetAll, "")
		assert.ErrorIs(t, err, services.ErrNotConfigured)
	})

	t.Run("unknown target", func(t *testing.T) {
		manager, f := newManager(t, WithStarter(&fakeStarter{}))
		seed(t, f, "pkg-1", models.WorkflowStatusCompleted, models.StageDone)

		_, err := manager.Regenerate(context.Background(), "pkg-1", Target("audio"), "")
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("unknown package", func(t *testing.T) {
		manager, _ := newManager(t, WithStarter(&fakeStarter{}))

		_, err := manager.Regenerate(context.Background(), "missing", TargetAll, "")
		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("starter fails", func(t *testing.T) {
		manager, f := newManager(t, WithStarter(&fakeStarter{err: errors.New("shutting down")}))
		seed(t, f, "pkg-1", models.WorkflowStatusCompleted, models.StageDone)

		_, err := manager.Regenerate(context.Background(), "pkg-1", TargetVideo, "")
		assert.EqualError(t, err, "shutting down")
	})
}

func TestRequestFromInput(t *testing.T) {
	req := requestFromInput(map[string]any{
		"image_asset_id":     "asset-1",
		"background_context": "ctx",
		"options":            map[string]any{"video_duration_sec": float64(12)},
	})

	assert.Equal(t, "asset-1", req.ImageAssetID)
	assert.Empty(t, req.ImageURL)
	assert.Equal(t, 12, req.Options.VideoDurationSec)
}
