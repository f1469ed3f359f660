package images

import (
	"fmt"
	"hash/fnv"
	"html"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
)

var avatarPalette = []string{
	"#0082c9", "#7a5195", "#ef5675", "#ffa600", "#2f9e44",
	"#1098ad", "#c2255c", "#5f3dc4", "#e8590c", "#495057",
}

// GET /avatar/guest/:name/:size
func GuestAvatar() fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("name")
		size, err := strconv.Atoi(c.Params("size"))
		if err != nil {
			size = 44
		}
		if size < 16 {
			size = 16
		} else if size > 512 {
			size = 512
		}

		c.Set("Content-Type", "image/svg+xml")
		c.Set("Cache-Control", "public, max-age=86400")
		return c.SendString(avatarSVG(name, size))
	}
}

func avatarSVG(name string, size int) string {
	initial := "?"
	if r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name)); r != utf8.RuneError {
		initial = string(unicode.ToUpper(r))
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	color := avatarPalette[h.Sum32()%uint32(len(avatarPalette))]

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 100 100">`+
		`<rect width="100" height="100" fill="%s"/>`+
		`<text x="50" y="50" dy=".35em" text-anchor="middle" font-family="sans-serif" font-size="50" fill="#fff">%s</text>`+
		`</svg>`, size, size, color, html.EscapeString(initial))
}
