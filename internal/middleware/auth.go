package middleware

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

// hasAdminToken checks the ADMIN_TOKEN bearer or X-Admin-Token header.
func hasAdminToken(c fiber.Ctx, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	if scheme, token, ok := strings.Cut(c.Get("Authorization"), " "); ok &&
		strings.EqualFold(scheme, "bearer") && constantTimeCompare(token, adminToken) {
		return true
	}
	return constantTimeCompare(c.Get("X-Admin-Token"), adminToken)
}

func unauthorizedAdmin(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "Unauthorized",
		"message": "Admin session or 'Authorization: Bearer <token>' header required.",
	})
}

// constantTimeCompare performs constant-time string comparison to prevent timing attacks
func constantTimeCompare(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
