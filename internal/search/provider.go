// Package search exposes Jellyfin items as a unified-search provider.
package search

import (
	"context"
	"strings"

	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/prefs"
)

const (
	ProviderID   = "jellyfin-search-items"
	providerName = "Jellyfin items"
	DefaultLimit = 5
)

type Gateway interface {
	SearchItems(ctx context.Context, userID, query string, offset, limit int) jellyfin.Result[jellyfin.SearchResult]
	ThumbnailURL(item jellyfin.Item, opts jellyfin.ThumbnailOptions) string
}

type Flags interface {
	AppEnabled(ctx context.Context, key string, def bool) bool
}

type Entry struct {
	ThumbnailURL string `json:"thumbnail_url"`
	Title        string `json:"title"`
	Subline      string `json:"subline"`
	ResourceURL  string `json:"resource_url"`
	Icon         string `json:"icon"`
	Rounded      bool   `json:"rounded"`
}

// Result is one page of entries. Cursor is the offset of the next page.
type Result struct {
	Name        string  `json:"name"`
	IsPaginated bool    `json:"is_paginated"`
	Entries     []Entry `json:"entries"`
	Cursor      int     `json:"cursor"`
}

type Query struct {
	Term   string
	Cursor int
	Limit  int
}

type Provider struct {
	gw     Gateway
	flags  Flags
	appID  string
	appURL string
	logger logging.Logger
}

func NewProvider(gw Gateway, flags Flags, appID, appURL string, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Default()
	}
	return &Provider{gw: gw, flags: flags, appID: appID, appURL: strings.TrimRight(appURL, "/"), logger: logger}
}

func (p *Provider) ID() string   { return ProviderID }
func (p *Provider) Name() string { return providerName }

// Order ranks this provider first while the user is inside the app itself.
func (p *Provider) Order(route string) int {
	if strings.HasPrefix(route, p.appID+".") {
		return -1
	}
	return 20
}

// Search returns one page of matches for userID. Gateway failures degrade
// to an empty page rather than an error.
func (p *Provider) Search(ctx context.Context, userID string, q Query) Result {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Cursor < 0 {
		q.Cursor = 0
	}
	if !p.flags.AppEnabled(ctx, prefs.KeySearchItemsEnabled, true) {
		return Result{Name: providerName, IsPaginated: true, Entries: []Entry{}, Cursor: 0}
	}

	entries := []Entry{}
	res := p.gw.SearchItems(ctx, userID, q.Term, q.Cursor, q.Limit)
	if res.IsErr() {
		p.logger.Debug("Jellyfin search failed", "error", res.Err().Message)
	} else {
		for _, item := range res.Value().Items {
			entries = append(entries, p.entry(item))
		}
	}

	return Result{
		Name:        providerName,
		IsPaginated: true,
		Entries:     entries,
		Cursor:      q.Cursor + q.Limit,
	}
}

func (p *Provider) entry(item jellyfin.Item) Entry {
	return Entry{
		ThumbnailURL: p.gw.ThumbnailURL(item, jellyfin.ThumbnailOptions{}),
		Title:        jellyfin.MainText(item),
		Subline:      jellyfin.SubText(item),
		ResourceURL:  p.appURL + "/i/" + item.String("Id"),
		Icon:         p.appURL + "/img/app.svg",
		Rounded:      false,
	}
}
