// Package jellyfin is the single gateway for outbound Jellyfin traffic. It
// builds authenticated requests from stored credentials, dispatches them and
// folds every outcome into a Result.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/prefs"
)

const (
	userAgent = "Nextcloud Jellyfin integration"

	// Sent on AuthenticateByName, before any token exists.
	clientAuthorization = `MediaBrowser Client="NC", Device="NCserver", DeviceId="whatever", Version="26"`
)

// searchItemTypes restricts unified search to playable/browsable media kinds.
var searchItemTypes = []string{
	"Audio", "AudioBook", "Book", "Episode", "Movie", "MusicAlbum",
	"Photo", "PhotoAlbum", "Recording", "Series", "Trailer", "Video",
}

// Store is the read side of the credential store. Credentials must come from
// a single scope so a token is never sent to another scope's server.
type Store interface {
	Credentials(ctx context.Context, userID string) (prefs.Credentials, error)
}

// Doer is the HTTP transport; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Params are query parameters for GET and a JSON body for other methods.
type Params map[string]any

// Raw is an undecoded success payload, used for images.
type Raw struct {
	Body   []byte
	Header http.Header
}

type Options struct {
	HTTP    Doer
	Logger  logging.Logger
	AppURL  string // absolute prefix of this app's own routes
	Timeout time.Duration
}

// Client speaks to whichever Jellyfin server the calling user configured.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	store  Store
	http   Doer
	logger logging.Logger
	appURL string
}

// New creates a gateway reading credentials from store.
func New(store Store, opts Options) *Client {
	if opts.HTTP == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		opts.HTTP = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Client{
		store:  store,
		http:   opts.HTTP,
		logger: opts.Logger,
		appURL: strings.TrimRight(opts.AppURL, "/"),
	}
}

// Login authenticates against serverURL and returns the decoded
// AuthenticateByName payload. Persisting it is the caller's job.
func (c *Client) Login(ctx context.Context, serverURL, username, password string) Result[Object] {
	payload, err := json.Marshal(map[string]string{
		"Username": username,
		"Pw":       password,
	})
	if err != nil {
		return Fail[Object](&Error{Message: err.Error()})
	}

	u := strings.TrimRight(serverURL, "/") + "/Users/AuthenticateByName"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn("Jellyfin login error", "error", err.Error())
		return Fail[Object](&Error{Message: err.Error()})
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", clientAuthorization)
	req.Header.Set("Content-Type", "application/json")

	// Wrong credentials are routine here; the caller only sees the message.
	body, _, failure := c.exchange(req, "Jellyfin login error", false)
	if failure != nil {
		failure.Body = nil
		return Fail[Object](failure)
	}
	return Ok(decodeObject(body))
}

// Logout ends the remote session of userID. Callers clear local credentials
// whatever the outcome.
func (c *Client) Logout(ctx context.Context, userID string) Result[Object] {
	return c.Request(ctx, userID, "sessions/logout", nil, http.MethodPost)
}

// Request performs an authenticated call and decodes a JSON object. A body
// that is empty or not an object decodes to an empty Object.
func (c *Client) Request(ctx context.Context, userID, endpoint string, params Params, method string) Result[Object] {
	body, _, failure := c.dispatch(ctx, userID, endpoint, params, method)
	if failure != nil {
		return Fail[Object](failure)
	}
	return Ok(decodeObject(body))
}

// RequestRaw performs an authenticated call and returns body and headers untouched.
func (c *Client) RequestRaw(ctx context.Context, userID, endpoint string, params Params, method string) Result[Raw] {
	body, header, failure := c.dispatch(ctx, userID, endpoint, params, method)
	if failure != nil {
		return Fail[Raw](failure)
	}
	return Ok(Raw{Body: body, Header: header})
}

func (c *Client) dispatch(ctx context.Context, userID, endpoint string, params Params, method string) ([]byte, http.Header, *Error) {
	if !supportedMethod(method) {
		return nil, nil, &Error{Message: msgBadMethod}
	}

	creds, err := c.store.Credentials(ctx, userID)
	if err != nil {
		return nil, nil, &Error{Message: err.Error()}
	}

	u := strings.TrimRight(creds.ServerURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var body io.Reader
	if len(params) > 0 {
		if method == http.MethodGet {
			u += "?" + encodeQuery(params)
		} else {
			payload, err := json.Marshal(params)
			if err != nil {
				return nil, nil, &Error{Message: err.Error()}
			}
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		c.logger.Warn("Jellyfin API error", "error", err.Error())
		return nil, nil, &Error{Message: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", `MediaBrowser Token="`+creds.Token+`"`)
	req.Header.Set("Content-Type", "application/json")

	return c.exchange(req, "Jellyfin API error", true)
}

// exchange sends req once. Status >= 400 and transport errors both come back
// as *Error; nothing is retried. With warnRejected unset every rejection is
// logged at debug, otherwise only 404 is.
func (c *Client) exchange(req *http.Request, logMsg string, warnRejected bool) ([]byte, http.Header, *Error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(logMsg, "error", err.Error())
		return nil, nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn(logMsg, "error", err.Error(), "status", resp.StatusCode)
		return nil, nil, &Error{Message: err.Error(), Status: resp.StatusCode}
	}

	if resp.StatusCode >= 400 {
		parsed := decodeAny(body)
		// Missing items are routine; anything else deserves attention.
		if !warnRejected || resp.StatusCode == http.StatusNotFound {
			c.logger.Debug(logMsg, "status", resp.StatusCode, "url", req.URL.Path, "response_body", parsed)
		} else {
			c.logger.Warn(logMsg, "status", resp.StatusCode, "url", req.URL.Path, "response_body", parsed)
		}
		return nil, nil, &Error{Message: msgBadCredentials, Status: resp.StatusCode, Body: parsed}
	}

	return body, resp.Header, nil
}

func supportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// encodeQuery serializes params in key order.
func encodeQuery(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case []string:
			q[k] = v
		case bool:
			q.Set(k, strconv.FormatBool(v))
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}
	return q.Encode()
}

// GetItemInfo fetches one item as seen by the stored Jellyfin user.
func (c *Client) GetItemInfo(ctx context.Context, userID, itemID string) Result[Item] {
	creds, err := c.store.Credentials(ctx, userID)
	if err != nil {
		return Fail[Item](&Error{Message: err.Error()})
	}
	endpoint := "users/" + url.PathEscape(creds.UserID) + "/items/" + url.PathEscape(itemID)
	return c.Request(ctx, userID, endpoint, nil, http.MethodGet)
}

// SearchResult is one page of search hits. When the response has no Items
// array, Items is nil and Raw carries the response unchanged.
type SearchResult struct {
	Items []Item
	Raw   Object
}

// SearchItems runs one page of a recursive library search. offset and limit
// map straight to startIndex and Limit.
func (c *Client) SearchItems(ctx context.Context, userID, query string, offset, limit int) Result[SearchResult] {
	creds, err := c.store.Credentials(ctx, userID)
	if err != nil {
		return Fail[SearchResult](&Error{Message: err.Error()})
	}
	params := Params{
		"searchTerm":       query,
		"Recursive":        "true",
		"Limit":            limit,
		"startIndex":       offset,
		"fields":           "MediaSources,OriginalTitle",
		"includeItemTypes": strings.Join(searchItemTypes, ","),
	}
	res := c.Request(ctx, userID, "users/"+url.PathEscape(creds.UserID)+"/items", params, http.MethodGet)
	if res.IsErr() {
		return Fail[SearchResult](res.Err())
	}
	resp := res.Value()
	items, ok := resp.Objects("Items")
	if !ok {
		return Ok(SearchResult{Raw: resp})
	}
	return Ok(SearchResult{Items: items})
}

// ImageOptions size an image request. Zero fields take the defaults 44/44/96.
type ImageOptions struct {
	FillHeight int
	FillWidth  int
	Quality    int
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.FillHeight <= 0 {
		o.FillHeight = 44
	}
	if o.FillWidth <= 0 {
		o.FillWidth = 44
	}
	if o.Quality <= 0 {
		o.Quality = 96
	}
	return o
}

// GetMediaImage fetches the primary image of an item as raw bytes.
func (c *Client) GetMediaImage(ctx context.Context, userID, itemID string, opts ImageOptions) Result[Raw] {
	opts = opts.withDefaults()
	params := Params{
		"fillHeight": opts.FillHeight,
		"fillWidth":  opts.FillWidth,
		"quality":    opts.Quality,
	}
	return c.RequestRaw(ctx, userID, "items/"+url.PathEscape(itemID)+"/images/primary", params, http.MethodGet)
}

// GetDownloadLink builds a direct download URL without contacting the server.
// It reports false when either the server URL or the token is missing.
func (c *Client) GetDownloadLink(ctx context.Context, userID, itemID string) (string, bool) {
	creds, err := c.store.Credentials(ctx, userID)
	if err != nil || creds.ServerURL == "" || creds.Token == "" {
		return "", false
	}
	return strings.TrimRight(creds.ServerURL, "/") + "/items/" + url.PathEscape(itemID) +
		"/download?api_key=" + url.QueryEscape(creds.Token), true
}

// ServerURL is the resolved Jellyfin base URL for userID, or "".
func (c *Client) ServerURL(ctx context.Context, userID string) string {
	creds, err := c.store.Credentials(ctx, userID)
	if err != nil {
		return ""
	}
	return strings.TrimRight(creds.ServerURL, "/")
}
