// Package main provides the redflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/redflow/redflow/pkg/pipeline"
	"github.com/redflow/redflow/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *pipeline.Orchestrator
}

func NewAPI(logger *slog.Logger, orchestrator *pipeline.Orchestrator) *API {
	return &API{
		logger:       logger,
		orchestrator: orchestrator,
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("RedFlow API")
	})

	web.RegisterRoutes(app, web.NewAPIHandlers(a.orchestrator))

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
