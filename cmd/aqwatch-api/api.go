// Package main provides the aqwatch API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aqwatch/aqwatch/pkg/alerts"
	"github.com/aqwatch/aqwatch/pkg/eventbus"
	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/web"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	authorizer  workflow.Authorizer
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	authorizer workflow.Authorizer,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		authorizer:  authorizer,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App seeds the alert lifecycle workflow and wires the HTTP surface.
func (a *API) App(ctx context.Context) (*fiber.App, error) {
	graph := workflow.NewGraphService(a.persistence.WorkflowRepository())
	grants := workflow.NewGrantService(a.persistence.WorkflowRepository())

	_, err := workflow.SeedAlertWorkflow(ctx, graph, grants, a.logger)
	if err != nil {
		return nil, err
	}

	registry := workflow.NewRegistry(a.logger)
	registry.Register(models.EntityKindAlert, alerts.NewAccessor(a.persistence.AlertRepository()))

	executor := workflow.NewExecutor(graph, registry, a.authorizer, a.eventBus, a.logger)
	evaluation := alerts.NewEvaluationService(a.persistence, graph, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(executor, graph, evaluation, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("aqwatch API")
	})

	app.Get("/alerts", handlers.GetAlerts)
	app.Get("/rules", handlers.GetRules)
	app.Post("/measurements", handlers.PostMeasurement)

	w := app.Group("/workflow")
	w.Get("/transitions/:kind/:id", handlers.GetTransitions)
	w.Post("/transition/:module/:kind/:id/:transition", handlers.PostTransition)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
