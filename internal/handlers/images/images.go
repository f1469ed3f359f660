package images

import (
	"context"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/middleware"
)

// Source fetches item images; *jellyfin.Client satisfies it.
type Source interface {
	GetMediaImage(ctx context.Context, userID, itemID string, opts jellyfin.ImageOptions) jellyfin.Result[jellyfin.Raw]
}

type Opts struct {
	AppURL   string // absolute prefix used for the fallback avatar redirect
	CacheSec int
}

// GET /items/:itemId/images/primary
//
// Gateway failures never surface as an error status: the browser is sent to
// a generated avatar for fallbackName instead.
func Primary(src Source, opts Opts) fiber.Handler {
	cacheControl := "private, max-age=" + strconv.Itoa(opts.CacheSec)

	return func(c fiber.Ctx) error {
		itemID := c.Params("itemId")
		imgOpts := jellyfin.ImageOptions{
			FillHeight: queryInt(c, "fillHeight", 44),
			FillWidth:  queryInt(c, "fillWidth", 44),
			Quality:    queryInt(c, "quality", 96),
		}

		raw, err := src.GetMediaImage(c.Context(), middleware.UserID(c), itemID, imgOpts).Unwrap()
		if err != nil {
			return c.Redirect().Status(fiber.StatusFound).To(FallbackURL(opts.AppURL, c.Query("fallbackName"), 44))
		}

		contentType := raw.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		c.Set("Content-Type", contentType)
		if opts.CacheSec > 0 {
			c.Set("Cache-Control", cacheControl)
		}
		return c.Send(raw.Body)
	}
}

// FallbackURL is the generated avatar for name at size pixels.
func FallbackURL(appURL, name string, size int) string {
	if name == "" {
		name = "?"
	}
	return appURL + "/avatar/guest/" + url.PathEscape(name) + "/" + strconv.Itoa(size)
}

func queryInt(c fiber.Ctx, key string, def int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil && n > 0 {
		return n
	}
	return def
}
