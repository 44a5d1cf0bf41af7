package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/pace-go-api/internal/config"
	"github.com/noah-isme/pace-go-api/internal/handler"
	"github.com/noah-isme/pace-go-api/internal/middleware"
	"github.com/noah-isme/pace-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ProgressHandler   *handler.ProgressHandler
	RescheduleHandler *handler.RescheduleHandler
	InstanceHandler   *handler.InstanceHandler
	ReportHandler     *handler.ReportHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.ProgressHandler != nil {
		progress := api.Group("/progress")
		deps.ProgressHandler.Register(progress)
	}

	if deps.RescheduleHandler != nil {
		reschedules := api.Group("/reschedules", middleware.RateLimit("reschedules", 60, time.Minute))
		deps.RescheduleHandler.Register(reschedules)
	}

	if deps.InstanceHandler != nil {
		assessments := api.Group("/assessments")
		deps.InstanceHandler.Register(assessments)
	}

	if deps.ReportHandler != nil {
		reports := api.Group("/reports")
		deps.ReportHandler.Register(reports)
	}
}
