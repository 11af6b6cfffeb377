package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-api/internal/config"
	"github.com/noah-isme/activity-api/internal/handler"
	"github.com/noah-isme/activity-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	UserHandler     *handler.UserHandler
	ActivityHandler *handler.ActivityHandler
	JWTMiddleware   fiber.Handler
	AuthRateLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/", handler.Root(cfg))
	app.Get("/metrics", observability.MetricsHandler(cfg.AppVersion))

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth")
		deps.AuthHandler.RegisterPublic(auth, deps.AuthRateLimiter)
		deps.AuthHandler.RegisterProtected(auth.Group("", jwtMiddleware))
	}

	if deps.UserHandler != nil {
		users := api.Group("/users", jwtMiddleware)
		deps.UserHandler.Register(users)
	}

	// Health is registered before the protected group so it stays public.
	if deps.ActivityHandler != nil {
		activity := api.Group("/activity")
		deps.ActivityHandler.RegisterPublic(activity)
		deps.ActivityHandler.Register(activity.Group("", jwtMiddleware))
	}
}
