package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/promoflow/pkg/cmd"
	"github.com/dukex/promoflow/pkg/config"
	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/notify"
	"github.com/dukex/promoflow/pkg/persistence/postgresql"
	"github.com/urfave/cli/v3"
)

var errPostgresRequired = errors.New("migrate requires a postgres:// database url")

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run one workflow in the foreground and print its result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image-url",
				Usage: "URL of the product image",
			},
			&cli.StringFlag{
				Name:  "image-asset-id",
				Usage: "ID of a stored image artifact to use instead of --image-url",
			},
			&cli.StringFlag{
				Name:     "context",
				Usage:    "Background context describing the product and campaign",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "require-approval",
				Usage: "Stop at the approval stage instead of completing",
			},
			&cli.IntFlag{
				Name:  "video-duration",
				Usage: "Video duration in seconds (configuration default when 0)",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the pipeline configuration file (.yaml or .toml)",
				Sources: cli.EnvVars("PROMOFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for copywriting checkpoints",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return runWorkflow(ctx, command, os.Stdout)
		},
	}
}

func runWorkflow(ctx context.Context, command *cli.Command, out io.Writer) error {
	logger := log.WithModule("promoflow")

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	tracer, shutdownTracer := cmd.NewTracer(ctx, command.Bool("otel"), "promoflow", logger)
	defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

	checkpoints, closeCheckpoints, err := cmd.NewCheckpointStore(ctx, command.String("redis-url"), cfg.Copywriting)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer func() { _ = closeCheckpoints() }()

	pipeline, err := cmd.NewPipeline(cmd.PipelineDeps{
		Config:      cfg,
		Persistence: persistence,
		Emitter:     cmd.NewEmitter(logNotifier(logger), cfg.Notifications, nil, logger),
		Tracer:      tracer,
		Checkpoints: checkpoints,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	req := models.GenerationRequest{
		ImageURL:          command.String("image-url"),
		ImageAssetID:      command.String("image-asset-id"),
		BackgroundContext: command.String("context"),
		Options: models.GenerationOptions{
			RequireApproval:  command.Bool("require-approval"),
			VideoDurationSec: int(command.Int("video-duration")),
		},
	}

	result, err := pipeline.Orchestrator.Run(ctx, req, "cli")
	if err != nil {
		logger.ErrorContext(ctx, "Workflow failed", "error", err)

		if result == nil {
			return err
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if encodeErr := encoder.Encode(result); encodeErr != nil {
		return encodeErr
	}

	return err
}

// logNotifier turns notifications into debug log lines for foreground runs.
func logNotifier(logger *slog.Logger) notify.Notifier {
	return notify.NotifierFunc(func(ctx context.Context, event events.Event) error {
		logger.DebugContext(ctx, "Workflow event", "workflow_id", event.GetWorkflowID(), "event_type", event.GetType())

		return nil
	})
}

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply PostgreSQL schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL connection URL",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return migrate(ctx, command.String("database-url"), log.WithModule("migrate"))
		},
	}
}

func migrate(ctx context.Context, databaseURL string, logger *slog.Logger) error {
	if !postgresql.IsURL(databaseURL) {
		return errPostgresRequired
	}

	database, err := postgresql.Open(ctx, databaseURL)
	if err != nil {
		return err
	}

	defer func() { _ = database.Close() }()

	if err := postgresql.Migrate(ctx, logger, database); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Migrations applied")

	return nil
}
