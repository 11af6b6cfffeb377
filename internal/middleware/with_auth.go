package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny   = "any"
	AuthRoleAdmin = "admin"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role       string
	Permission string
}

// WithAuth wraps a single handler with authentication, role and permission guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}
	permission := strings.ToLower(strings.TrimSpace(opts.Permission))

	requireUser := role != AuthRoleAny || permission != ""

	return func(c *fiber.Ctx) error {
		if requireUser && UserID(c) == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}

		if role != AuthRoleAny && normalizeRoleValue(c.Locals(LocalUserRole)) != role {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}

		if permission != "" && !hasPermission(c, permission) {
			return utils.Fail(c, fiber.StatusForbidden, "Forbidden", nil)
		}

		return handler(c)
	}
}
