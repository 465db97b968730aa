package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dto"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// Paths that don't require tenant identification.
var tenantSkipPaths = []string{
	"/api/health",
}

// TenantMiddleware resolves the app from the X-App-ID header, falling back to
// the app_id query param. Unknown apps are rejected before any handler runs.
// extraSkip adds path prefixes served without a tenant, such as static uploads.
func TenantMiddleware(registry *tenant.Registry, extraSkip ...string) fiber.Handler {
	skipPaths := append(append([]string{}, tenantSkipPaths...), extraSkip...)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skip := range skipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		appID := c.Get("X-App-ID")
		source := "X-App-ID"
		if appID == "" {
			appID = c.Query("app_id")
			source = "app_id"
		}

		if appID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "X-App-ID header is required",
			})
		}
		if !registry.Exists(appID) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Invalid " + source + ": " + appID,
			})
		}

		c.Locals("app_id", appID)
		return c.Next()
	}
}
