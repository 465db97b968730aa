package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/config"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	reportHandler *handlers.ReportHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Health (no tenant required)
	api.Get("/health", healthHandler.Check)

	// Intake: 20 req/min per IP and app, anonymous or signed in
	submitLimiter := limiter.New(limiter.Config{
		Max:               20,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|" + tenant.GetAppID(c)
		},
	})
	api.Post("/reports", submitLimiter, middleware.OptionalJWT(cfg), reportHandler.Submit)

	// Triage (admin token or admin JWT)
	admin := api.Group("/admin", middleware.OptionalJWT(cfg), middleware.AdminRequired(cfg))
	admin.Get("/reports", reportHandler.List)
	admin.Get("/reports/stats", reportHandler.Stats)
	admin.Get("/reports/:id", reportHandler.Get)
	admin.Get("/reports/:id/duplicates", reportHandler.Duplicates)
	admin.Patch("/reports/:id", reportHandler.Update)
}
