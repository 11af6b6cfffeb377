package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-api/internal/config"
	"github.com/noah-isme/activity-api/internal/utils"
)

// HealthResponse represents the payload returned by the liveness endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
}

// HealthCheck returns a handler that reports process liveness without touching the database.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Version:     cfg.AppVersion,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

// Root answers the bare root path with a plain text banner.
func Root(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendString(cfg.AppName + " is running")
	}
}
