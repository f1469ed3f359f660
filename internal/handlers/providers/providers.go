// Package providers mounts the search and reference providers over HTTP.
package providers

import (
	"strconv"
	"strings"

	"jellyfin-integration/internal/middleware"
	"jellyfin-integration/internal/reference"
	"jellyfin-integration/internal/search"

	"github.com/gofiber/fiber/v3"
)

// GET /search?term=&cursor=&limit=&route=
func Search(p *search.Provider) fiber.Handler {
	return func(c fiber.Ctx) error {
		term := strings.TrimSpace(c.Query("term"))
		if term == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "term required"})
		}
		cursor, _ := strconv.Atoi(c.Query("cursor", "0"))
		limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(search.DefaultLimit)))

		res := p.Search(c.Context(), middleware.UserID(c), search.Query{Term: term, Cursor: cursor, Limit: limit})
		return c.JSON(fiber.Map{
			"id":     p.ID(),
			"order":  p.Order(c.Query("route")),
			"result": res,
		})
	}
}

// GET /references/provider
func ReferenceInfo(p *reference.Provider) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(p.Info(c.Context(), middleware.UserID(c)))
	}
}

// GET /references/resolve?reference=
func Resolve(p *reference.Provider) fiber.Handler {
	return func(c fiber.Ctx) error {
		text := strings.TrimSpace(c.Query("reference"))
		if text == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reference required"})
		}
		ref := p.Resolve(c.Context(), middleware.UserID(c), text)
		if ref == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "reference not handled"})
		}
		return c.JSON(ref)
	}
}
