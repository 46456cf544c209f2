package middleware

import (
	"dfp/database"
	"dfp/models"

	"github.com/gofiber/fiber/v2"
)

// RequireAdmin ensures the authenticated user carries the ADMIN role.
// Must run after JWTMiddleware.
func RequireAdmin(c *fiber.Ctx) error {
	userId, ok := c.Locals("userId").(uint)
	if !ok {
		return JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied!", nil)
	}

	var admin models.User
	if err := database.Database.Db.
		Where("id = ? AND is_deleted = false AND role = ?", userId, "ADMIN").
		First(&admin).Error; err != nil {
		return JsonResponse(c, fiber.StatusUnauthorized, false, "Access Denied! Admin role required.", nil)
	}

	c.Locals("adminName", admin.Name)
	return c.Next()
}
