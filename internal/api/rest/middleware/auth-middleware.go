package middleware

import (
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/gofiber/fiber/v2"
)

const AdminCookie = "admin_token"

// AdminOnly verifies the admin token and puts the session in Locals("admin").
func AdminOnly(adminSvc services.AdminService) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		// 1) try cookie first
		tokenStr := strings.TrimSpace(ctx.Cookies(AdminCookie))

		// 2) fallback to Authorization header
		if tokenStr == "" {
			tokenStr = strings.TrimSpace(ctx.Get("Authorization"))
		}
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		session, err := adminSvc.Authorize(ctx.UserContext(), tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		ctx.Locals("admin", session)
		return ctx.Next()
	}
}
