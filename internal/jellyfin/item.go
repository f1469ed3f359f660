package jellyfin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	glyphVideo = "🎥 "
	glyphAudio = "🎧 "
)

// MainText is the display title of an item: a media-kind glyph, the name and
// the original title in parentheses when it differs.
func MainText(item Item) string {
	name := item.String("Name")
	if orig := item.String("OriginalTitle"); orig != "" && orig != name {
		name += " (" + orig + ")"
	}
	return glyph(item) + name
}

func glyph(item Item) string {
	for _, kind := range []string{item.String("MediaType"), item.String("Type")} {
		switch kind {
		case "Video":
			return glyphVideo
		case "Audio", "MusicAlbum":
			return glyphAudio
		}
	}
	return ""
}

// SubText joins the production year and the total media size, skipping
// whichever is unknown.
func SubText(item Item) string {
	var parts []string
	if year := item.Int("ProductionYear"); year > 0 {
		parts = append(parts, fmt.Sprintf("Production year %d", year))
	}
	if size := TotalSize(item); size > 0 {
		parts = append(parts, humanize.Bytes(uint64(size)))
	}
	return strings.Join(parts, " - ")
}

// TotalSize sums Size over every MediaSources entry.
func TotalSize(item Item) int64 {
	sources, _ := item.Objects("MediaSources")
	var total int64
	for _, src := range sources {
		if s := src.Int("Size"); s > 0 {
			total += s
		}
	}
	return total
}

// ThumbnailOptions size a proxied thumbnail; zero fields are left out of the URL.
type ThumbnailOptions struct {
	FillHeight int
	FillWidth  int
	Quality    int
}

// ThumbnailURL points at this app's own image proxy rather than at Jellyfin,
// so the token never reaches the browser.
func (c *Client) ThumbnailURL(item Item, opts ThumbnailOptions) string {
	q := url.Values{}
	q.Set("fallbackName", item.String("Name"))
	if opts.FillHeight > 0 {
		q.Set("fillHeight", strconv.Itoa(opts.FillHeight))
	}
	if opts.FillWidth > 0 {
		q.Set("fillWidth", strconv.Itoa(opts.FillWidth))
	}
	if opts.Quality > 0 {
		q.Set("quality", strconv.Itoa(opts.Quality))
	}
	return c.appURL + "/items/" + url.PathEscape(item.String("Id")) + "/images/primary?" + q.Encode()
}
