package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/promoflow/pkg/cmd"
	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/notify/ws"
	"github.com/dukex/promoflow/pkg/ratelimit"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.InfoContext(ctx, "Initializing Promoflow API")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	tracer, shutdownTracer := cmd.NewTracer(ctx, command.Bool("otel"), "promoflow-api", logger)
	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	checkpoints, closeCheckpoints, err := cmd.NewCheckpointStore(ctx, command.String("redis-url"), cfg.Copywriting)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer func() { _ = closeCheckpoints() }()

	m := metrics.New()
	emitter := cmd.NewEmitter(notify.NewBusNotifier(eventBus), cfg.Notifications, m, logger)

	hub := ws.NewHub(logger, ratelimit.NewReporter(cfg.Notifications.ErrorLogCooldown()))
	if err := cmd.RouteNotifications(ctx, eventBus, hub.Handle); err != nil {
		return err
	}

	pipeline, err := cmd.NewPipeline(cmd.PipelineDeps{
		Config:      cfg,
		Persistence: persistence,
		Emitter:     emitter,
		Metrics:     m,
		Tracer:      tracer,
		Checkpoints: checkpoints,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if err := pipeline.Registry.StartPruner(cfg.Registry.PruneSchedule, cfg.Registry.Retention()); err != nil {
		return fmt.Errorf("failed to start registry pruner: %w", err)
	}

	wsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(int(command.Int("ws-port"))),
		Handler:           hub,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := wsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "WebSocket server stopped", "error", err)
		}
	}()

	api := NewAPI(logger, persistence, pipeline, m)

	return serve(ctx, logger, func() error { return api.Start(int(command.Int("port"))) },
		shutdownStep{name: "http", stop: api.Shutdown},
		shutdownStep{name: "websocket", stop: wsServer.Shutdown},
		shutdownStep{name: "workflows", stop: pipeline.Registry.Shutdown},
	)
}

type shutdownStep struct {
	name string
	stop func(ctx context.Context) error
}

// serve runs start until ctx is done or start returns, then runs every step
// in order. It returns only after the last step, so deferred closes of the
// stores happen after running workflows recorded their final status.
func serve(ctx context.Context, logger *slog.Logger, start func() error, steps ...shutdownStep) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		<-ctx.Done()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancelShutdown()

		logger.InfoContext(shutdownCtx, "Shutting down Promoflow API")

		for _, step := range steps {
			if err := step.stop(shutdownCtx); err != nil {
				logger.ErrorContext(shutdownCtx, "Shutdown step failed", "step", step.name, "error", err)
			}
		}
	}()

	err := start()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)
	}

	cancel()
	<-stopped

	return err
}
