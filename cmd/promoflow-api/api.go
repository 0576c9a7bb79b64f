// Package main provides the Promoflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/promoflow/pkg/cmd"
	"github.com/dukex/promoflow/pkg/metrics"
	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	pipeline    *cmd.Pipeline
	metrics     *metrics.Metrics
	validate    *validator.Validate
	app         *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	pipeline *cmd.Pipeline,
	metrics *metrics.Metrics,
) *API {
	a := &API{
		persistence: persistence,
		logger:      logger,
		pipeline:    pipeline,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	a.app = a.newApp()

	return a
}

func (a *API) App() *fiber.App {
	return a.app
}

func (a *API) newApp() *fiber.App {
	handlers := web.NewAPIHandlers(a.pipeline.Packages, a.pipeline.Approvals, a.validate, a.persistence)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Promoflow API")
	})

	web.RegisterRoutes(app, handlers)

	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Starting Promoflow API", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}
