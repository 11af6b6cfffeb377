package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals(LocalUserRole))
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequirePermission ensures that the authenticated user was granted permission.
// Admins pass every permission check.
func RequirePermission(permission string) fiber.Handler {
	permission = strings.ToLower(strings.TrimSpace(permission))

	return func(c *fiber.Ctx) error {
		if UserID(c) == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		if !hasPermission(c, permission) {
			return utils.SendError(c, fiber.StatusForbidden, "Forbidden")
		}
		return c.Next()
	}
}

func hasPermission(c *fiber.Ctx, permission string) bool {
	if normalizeRoleValue(c.Locals(LocalUserRole)) == models.RoleAdmin {
		return true
	}
	for _, granted := range UserPermissions(c) {
		if strings.EqualFold(strings.TrimSpace(granted), permission) {
			return true
		}
	}
	return false
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
