package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-api/internal/utils"
	"github.com/noah-isme/activity-api/pkg/token"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID          = "user_id"
	LocalUserRole        = "user_role"
	LocalUserEmail       = "user_email"
	LocalUserPermissions = "user_permissions"
)

// TokenParser validates a bearer token and returns its subject.
type TokenParser interface {
	Parse(tokenString string) (token.Subject, error)
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
func JWTProtected(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		subject, err := parser.Parse(tokenString)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		permissions := subject.Permissions
		if permissions == nil {
			permissions = []string{}
		}

		c.Locals(LocalUserID, subject.UserID)
		c.Locals(LocalUserRole, strings.ToLower(strings.TrimSpace(subject.Role)))
		c.Locals(LocalUserEmail, subject.Email)
		c.Locals(LocalUserPermissions, permissions)

		return c.Next()
	}
}

// UserID returns the authenticated user id, or zero when the request is anonymous.
func UserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(LocalUserID).(uint); ok {
		return id
	}
	return 0
}

// UserPermissions returns the permissions carried by the request token.
func UserPermissions(c *fiber.Ctx) []string {
	if permissions, ok := c.Locals(LocalUserPermissions).([]string); ok {
		return permissions
	}
	return nil
}
