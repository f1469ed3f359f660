// Package settings serves the read side of the settings pages and the
// navigation entry.
package settings

import (
	"context"

	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"
	"jellyfin-integration/internal/prefs"

	"github.com/gofiber/fiber/v3"
)

type Store interface {
	AppValue(ctx context.Context, key, def string) (string, error)
	UserValue(ctx context.Context, userID, key, def string) (string, error)
	Credentials(ctx context.Context, userID string) (prefs.Credentials, error)
	Enabled(ctx context.Context, userID, key string, def bool) bool
}

type PersonalSettings struct {
	SearchItemsEnabled bool   `json:"search_items_enabled"`
	NavigationEnabled  bool   `json:"navigation_enabled"`
	LinkPreviewEnabled bool   `json:"link_preview_enabled"`
	ServerURL          string `json:"server_url"`
	UserName           string `json:"user_name"`
	ServerName         string `json:"server_name"`
}

// AdminSettings never carries the token itself, only whether one is set.
type AdminSettings struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ServerID  string `json:"server_id"`
	ServerURL string `json:"server_url"`
}

type NavigationEntry struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
	Href  string `json:"href"`
	Icon  string `json:"icon"`
	Name  string `json:"name"`
}

// GET /settings/personal
func Personal(store Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, userID := c.Context(), middleware.UserID(c)

		out := PersonalSettings{
			SearchItemsEnabled: store.Enabled(ctx, userID, prefs.KeySearchItemsEnabled, true),
			NavigationEnabled:  store.Enabled(ctx, userID, prefs.KeyNavigationEnabled, false),
			LinkPreviewEnabled: store.Enabled(ctx, userID, prefs.KeyLinkPreviewEnabled, true),
		}
		creds, err := store.Credentials(ctx, userID)
		if err != nil {
			return storageError(c, err)
		}
		out.ServerURL = creds.ServerURL
		if out.UserName, err = store.UserValue(ctx, userID, prefs.KeyUserName, ""); err != nil {
			return storageError(c, err)
		}
		if out.ServerName, err = store.UserValue(ctx, userID, prefs.KeyServerName, ""); err != nil {
			return storageError(c, err)
		}
		return c.JSON(out)
	}
}

// GET /settings/admin
func Admin(store Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx := c.Context()
		vals := map[string]string{}
		for _, key := range []string{prefs.KeyToken, prefs.KeyUserID, prefs.KeyUserName, prefs.KeyServerID, prefs.KeyServerURL} {
			v, err := store.AppValue(ctx, key, "")
			if err != nil {
				return storageError(c, err)
			}
			vals[key] = v
		}

		out := AdminSettings{
			UserID:    vals[prefs.KeyUserID],
			UserName:  vals[prefs.KeyUserName],
			ServerID:  vals[prefs.KeyServerID],
			ServerURL: vals[prefs.KeyServerURL],
		}
		if vals[prefs.KeyToken] != "" {
			out.Token = "yes"
		}
		return c.JSON(out)
	}
}

// GET /navigation answers 204 unless the user opted in and a server is
// known. The user's own connection wins over the app-global one and the two
// are never mixed.
func Navigation(store Store, appID, appURL string) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, userID := c.Context(), middleware.UserID(c)
		if !store.Enabled(ctx, userID, prefs.KeyNavigationEnabled, false) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		creds, err := store.Credentials(ctx, userID)
		if err != nil {
			return storageError(c, err)
		}
		if creds.ServerURL == "" {
			return c.SendStatus(fiber.StatusNoContent)
		}
		name := creds.ServerName
		if name == "" {
			name = "Jellyfin"
		}
		return c.JSON(NavigationEntry{
			ID:    appID,
			Order: 10,
			Href:  creds.ServerURL,
			Icon:  appURL + "/img/app.svg",
			Name:  name,
		})
	}
}

func storageError(c fiber.Ctx, err error) error {
	logging.Error("failed to read settings", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch settings"})
}
