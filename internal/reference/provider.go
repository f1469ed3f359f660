// Package reference turns links to /i/{itemId} into rich link previews.
package reference

import (
	"context"
	"regexp"
	"strings"

	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/prefs"
	"jellyfin-integration/internal/search"
)

const (
	ProviderID    = "jellyfin-items"
	providerTitle = "Jellyfin media items"
	providerOrder = 10

	// RichObjectTypeLink marks a reference that carries no item data.
	RichObjectTypeLink = "open-graph"
)

type Gateway interface {
	GetItemInfo(ctx context.Context, userID, itemID string) jellyfin.Result[jellyfin.Item]
	ThumbnailURL(item jellyfin.Item, opts jellyfin.ThumbnailOptions) string
}

type Flags interface {
	AppEnabled(ctx context.Context, key string, def bool) bool
	Enabled(ctx context.Context, userID, key string, def bool) bool
}

type Info struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Order             int      `json:"order"`
	IconURL           string   `json:"icon_url"`
	SearchProviderIDs []string `json:"search_providers_ids"`
}

type Reference struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	RichObjectType string `json:"rich_object_type"`
	RichObject     any    `json:"rich_object,omitempty"`
}

type Options struct {
	AppID     string
	PublicURL string // base URL links are recognized under
	Logger    logging.Logger
}

type Provider struct {
	gw             Gateway
	flags          Flags
	appURL         string
	richObjectType string
	link           *regexp.Regexp
	logger         logging.Logger
}

func NewProvider(gw Gateway, flags Flags, opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	base := strings.TrimRight(opts.PublicURL, "/")
	plain := regexp.QuoteMeta(base + "/apps/" + opts.AppID)
	indexed := regexp.QuoteMeta(base + "/index.php/apps/" + opts.AppID)

	return &Provider{
		gw:             gw,
		flags:          flags,
		appURL:         base + "/apps/" + opts.AppID,
		richObjectType: opts.AppID + "_item",
		link:           regexp.MustCompile(`(?i)^(?:` + plain + `|` + indexed + `)/i/([0-9a-z]+)$`),
		logger:         opts.Logger,
	}
}

// Info describes the provider to userID; search is offered only while the
// user keeps search_items_enabled on. An empty userID gets the full list.
func (p *Provider) Info(ctx context.Context, userID string) Info {
	ids := []string{}
	if userID == "" || p.flags.Enabled(ctx, userID, prefs.KeySearchItemsEnabled, true) {
		ids = append(ids, search.ProviderID)
	}
	return Info{
		ID:                ProviderID,
		Title:             providerTitle,
		Order:             providerOrder,
		IconURL:           p.appURL + "/img/app-dark.svg",
		SearchProviderIDs: ids,
	}
}

// Match reports whether text is an item link and previews are enabled at
// both app and user level.
func (p *Provider) Match(ctx context.Context, userID, text string) bool {
	if !p.flags.AppEnabled(ctx, prefs.KeyLinkPreviewEnabled, true) ||
		!p.flags.Enabled(ctx, userID, prefs.KeyLinkPreviewEnabled, true) {
		return false
	}
	return p.link.MatchString(text)
}

// ItemID extracts the item id of a matching link.
func (p *Provider) ItemID(text string) (string, bool) {
	m := p.link.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolve returns nil when text does not match. A matching link whose item
// cannot be fetched still resolves, as a plain link reference.
func (p *Provider) Resolve(ctx context.Context, userID, text string) *Reference {
	if !p.Match(ctx, userID, text) {
		return nil
	}
	itemID, _ := p.ItemID(text)

	item, err := p.gw.GetItemInfo(ctx, userID, itemID).Unwrap()
	if err != nil {
		p.logger.Debug("falling back to plain link reference", "item_id", itemID, "error", err.Error())
		return &Reference{URL: text, Title: text, RichObjectType: RichObjectTypeLink}
	}

	description := jellyfin.SubText(item)
	if item.Has("Overview") {
		description += " - " + item.String("Overview")
	}
	return &Reference{
		URL:            text,
		Title:          jellyfin.MainText(item),
		Description:    description,
		ImageURL:       p.gw.ThumbnailURL(item, jellyfin.ThumbnailOptions{FillHeight: 300, FillWidth: 300}),
		RichObjectType: p.richObjectType,
		RichObject:     item,
	}
}
