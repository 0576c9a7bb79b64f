package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/otelhelper"
	"github.com/dukex/promoflow/pkg/ratelimit"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns an OTLP tracer when enabled and a noop one otherwise,
// including when the exporter cannot be created.
//
// nolint:ireturn
func NewTracer(ctx context.Context, enabled bool, serviceName string, logger *slog.Logger) (trace.Tracer, otelhelper.ShutdownFunc) {
	noopShutdown := func(context.Context) error { return nil }

	if !enabled {
		return otelhelper.NoopTracer(), noopShutdown
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled, failed to create exporter", "error", err)

		return otelhelper.NoopTracer(), noopShutdown
	}

	return tracer, shutdown
}

// NewEmitter wraps notifier in the best-effort emitter, counting failures in m.
func NewEmitter(notifier notify.Notifier, cfg config.NotificationsConfig, m *metrics.Metrics, logger *slog.Logger) *notify.Emitter {
	return notify.NewEmitter(
		notifier,
		ratelimit.NewReporter(cfg.ErrorLogCooldown()),
		logger,
		notify.WithFailureHook(func(eventType events.EventType) {
			m.NotificationFailed(string(eventType))
		}),
	)
}
