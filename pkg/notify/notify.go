// Package notify delivers workflow notifications to subscribers on a best-effort basis.
package notify

import (
	"context"
	"log/slog"

	"github.com/dukex/promoflow/pkg/eventbus"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/ratelimit"
)

// Notifier pushes one event to the room of its workflow.
type Notifier interface {
	Notify(ctx context.Context, event events.Event) error
}

// BusNotifier publishes notifications on the event bus keyed by workflow id.
type BusNotifier struct {
	publisher eventbus.EventPublisher
}

func NewBusNotifier(publisher eventbus.EventPublisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

func (n *BusNotifier) Notify(ctx context.Context, event events.Event) error {
	return n.publisher.Publish(ctx, event.GetWorkflowID(), event)
}

// FailureHook observes notification failures, e.g. to count them.
type FailureHook func(eventType events.EventType)

// Emitter wraps a Notifier so that delivery failures never reach the caller.
// Failures are logged at most once per workflow within the reporter cooldown.
type Emitter struct {
	notifier  Notifier
	reporter  *ratelimit.Reporter
	logger    *slog.Logger
	onFailure FailureHook
}

type EmitterOption func(*Emitter)

func WithFailureHook(hook FailureHook) EmitterOption {
	return func(e *Emitter) {
		e.onFailure = hook
	}
}

func NewEmitter(notifier Notifier, reporter *ratelimit.Reporter, logger *slog.Logger, opts ...EmitterOption) *Emitter {
	if reporter == nil {
		reporter = ratelimit.NewReporter(ratelimit.DefaultCooldown)
	}

	e := &Emitter{
		notifier: notifier,
		reporter: reporter,
		logger:   logger.With("module", "notify"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Emit delivers event and swallows any failure. A nil Emitter is a no-op.
func (e *Emitter) Emit(ctx context.Context, event events.Event) {
	if e == nil || e.notifier == nil {
		return
	}

	// Delivery must still be attempted while the workflow is being torn down.
	err := e.notifier.Notify(context.WithoutCancel(ctx), event)
	if err == nil {
		return
	}

	if e.onFailure != nil {
		e.onFailure(event.GetType())
	}

	if e.reporter.ShouldLog("notify:" + event.GetWorkflowID()) {
		e.logger.WarnContext(ctx, "failed to deliver notification",
			"workflow_id", event.GetWorkflowID(),
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event events.Event) error

func (f NotifierFunc) Notify(ctx context.Context, event events.Event) error {
	return f(ctx, event)
}
