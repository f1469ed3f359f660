package version

import (
	appver "jellyfin-integration/internal/version"

	"github.com/gofiber/fiber/v3"
)

// GetVersion returns build version info.
func GetVersion(appID string) fiber.Handler {
	info := appver.Get(appID)
	return func(c fiber.Ctx) error {
		return c.JSON(info)
	}
}
