package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BlockHandler      *handler.BlockHandler
	EvaluationHandler *handler.EvaluationHandler
	AnalyticsHandler  *handler.AnalyticsHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Pipeline editing and evaluation share the block prefix. The per-user
	// limiter covers the whole surface; evaluations start sandbox containers,
	// so the budget is sized for them.
	if deps.BlockHandler != nil || deps.EvaluationHandler != nil {
		blocks := app.Group("/api/v1/blocks", jwtMiddleware, middleware.RateLimit("blocks", 60, time.Minute))
		if deps.BlockHandler != nil {
			deps.BlockHandler.Register(blocks)
		}
		if deps.EvaluationHandler != nil {
			deps.EvaluationHandler.Register(blocks)
		}
	}

	// Analytics is staff-only end to end; reject students at the routing
	// layer before the per-block capability checks run.
	if deps.AnalyticsHandler != nil {
		analytics := app.Group("/api/v1/analytics", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.AnalyticsHandler.Register(analytics)
	}
}
