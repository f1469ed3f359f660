package main

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/handlers/auth"
	configHandlers "jellyfin-integration/internal/handlers/config"
	"jellyfin-integration/internal/handlers/health"
	"jellyfin-integration/internal/handlers/images"
	"jellyfin-integration/internal/handlers/items"
	"jellyfin-integration/internal/handlers/providers"
	"jellyfin-integration/internal/handlers/settings"
	versionHandlers "jellyfin-integration/internal/handlers/version"
	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"
	"jellyfin-integration/internal/prefs"
	"jellyfin-integration/internal/reference"
	"jellyfin-integration/internal/search"
	"jellyfin-integration/web"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/static"
)

type deps struct {
	cfg    config.Config
	db     *sql.DB
	store  *prefs.Store
	gw     *jellyfin.Client
	logger logging.Logger
}

func newApp(d deps) *fiber.App {
	app := fiber.New(fiber.Config{
		EnableIPValidation: true,
		ProxyHeader:        fiber.HeaderXForwardedFor,
	})

	app.Use(recover.New())
	app.Use(logging.FiberMiddleware(d.logger))
	app.Use(middleware.AttachUser(d.db, d.cfg.AuthCookieName))

	searchProvider := search.NewProvider(d.gw, d.store, d.cfg.AppID, d.cfg.AppURL(), d.logger.With("component", "search"))
	referenceProvider := reference.NewProvider(d.gw, d.store, reference.Options{
		AppID:     d.cfg.AppID,
		PublicURL: d.cfg.PublicURL,
		Logger:    d.logger.With("component", "reference"),
	})
	assets := staticAssets(d.cfg.WebPath)
	requireUser := middleware.RequireUser()
	admin := middleware.AdminAccess(d.cfg.AdminToken)

	app.Get("/health", health.Health(d.db, d.cfg.AppID))
	app.Get("/version", versionHandlers.GetVersion(d.cfg.AppID))

	// Links are shared both with and without the index.php front controller.
	for _, prefix := range []string{"/apps/" + d.cfg.AppID, "/index.php/apps/" + d.cfg.AppID} {
		r := app.Group(prefix)

		r.Use("/img", assets)

		// Accounts
		r.Post("/auth/register", auth.RegisterHandler(d.db, d.cfg))
		r.Post("/auth/login", auth.LoginHandler(d.db, d.cfg))
		r.Post("/auth/logout", auth.LogoutHandler(d.db, d.cfg))
		r.Get("/auth/me", requireUser, auth.MeHandler())

		r.Get("/auth/users", admin, auth.ListUsers(d.db))
		r.Post("/auth/users", admin, auth.CreateUser(d.db))
		r.Patch("/auth/users/:id", admin, auth.UpdateUser(d.db))
		r.Delete("/auth/users/:id", admin, auth.DeleteUser(d.db, d.store))

		// Configuration
		r.Put("/config", configHandlers.SetConfig(d.store, d.gw, d.logger))
		r.Put("/admin-config", admin, configHandlers.SetAdminConfig(d.store, d.gw, d.logger))
		r.Get("/settings/personal", requireUser, settings.Personal(d.store))
		r.Get("/settings/admin", admin, settings.Admin(d.store))
		r.Get("/navigation", requireUser, settings.Navigation(d.store, d.cfg.AppID, d.cfg.AppURL()))

		// Media
		r.Get("/items/:itemId/images/primary", requireUser, images.Primary(d.gw, images.Opts{
			AppURL:   d.cfg.AppURL(),
			CacheSec: d.cfg.ImageCacheSec,
		}))
		r.Get("/avatar/guest/:name/:size", images.GuestAvatar())
		r.Get("/i/:itemId", requireUser, items.InternalLink(d.gw))

		// Providers
		r.Get("/search", requireUser, providers.Search(searchProvider))
		r.Get("/references/provider", providers.ReferenceInfo(referenceProvider))
		r.Get("/references/resolve", requireUser, providers.Resolve(referenceProvider))

		r.Get("/health/jellyfin", requireUser, health.Jellyfin(d.gw))
	}

	return app
}

// staticAssets serves icons from webPath/img when present, else the
// embedded copies.
func staticAssets(webPath string) fiber.Handler {
	dir := filepath.Join(webPath, "img")
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		return static.New(dir)
	}
	sub, err := fs.Sub(web.Assets, "img")
	if err != nil {
		panic(err)
	}
	return static.New("", static.Config{FS: sub})
}
