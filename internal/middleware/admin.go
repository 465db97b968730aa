package middleware

import (
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/config"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dto"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// AdminRequired gates the triage endpoints. A request is admitted when it
// carries the configured X-Admin-Token, or a verified JWT whose email or sub
// is listed in the config or whose role claim is "admin". A JWT carrying an
// app_id claim only admits requests for that app; the admin token and JWTs
// without the claim act across every app.
//
// Mount it after OptionalJWT so token-only callers do not need a JWT.
func AdminRequired(cfg *config.Config) fiber.Handler {
	adminEmails := parseCSV(cfg.AdminEmails)
	adminUserIDs := parseCSV(cfg.AdminUserIDs)

	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" {
			got := c.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.AdminToken)) == 1 {
				return c.Next()
			}
		}

		claims, ok := tenant.Claims(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		if scoped, _ := claims["app_id"].(string); scoped != "" && scoped != tenant.GetAppID(c) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Admin access is limited to app " + scoped,
			})
		}

		email, _ := claims["email"].(string)
		sub, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)

		if role == "admin" || contains(adminEmails, email) || contains(adminUserIDs, sub) {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	return val != "" && slices.Contains(list, val)
}
