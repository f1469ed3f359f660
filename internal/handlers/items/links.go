package items

import (
	"context"
	"net/url"

	"jellyfin-integration/internal/middleware"

	"github.com/gofiber/fiber/v3"
)

// Links resolves item targets; *jellyfin.Client satisfies it.
type Links interface {
	ServerURL(ctx context.Context, userID string) string
	GetDownloadLink(ctx context.Context, userID, itemID string) (string, bool)
}

// GET /i/:itemId
//
// Sends the browser to the item's page in the Jellyfin web client, or with
// ?download=1 to the direct download.
func InternalLink(links Links) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, userID, itemID := c.Context(), middleware.UserID(c), c.Params("itemId")

		if c.Query("download") == "1" {
			link, ok := links.GetDownloadLink(ctx, userID, itemID)
			if !ok {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no download link available"})
			}
			return c.Redirect().Status(fiber.StatusFound).To(link)
		}

		serverURL := links.ServerURL(ctx, userID)
		if serverURL == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Jellyfin is not configured"})
		}
		return c.Redirect().Status(fiber.StatusFound).To(serverURL + "/web/index.html#!/details?id=" + url.QueryEscape(itemID))
	}
}
