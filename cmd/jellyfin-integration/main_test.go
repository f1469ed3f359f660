package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/prefs"

	"github.com/gofiber/fiber/v3"
)

const testAppID = "integration_jellyfin"

type harness struct {
	app   *fiber.App
	store *prefs.Store
	jf    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.MigrateUp(sqlDB, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	jf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Users/AuthenticateByName":
			_, _ = w.Write([]byte(`{"AccessToken":"tok","ServerId":"srv","User":{"Id":"jf-u","Name":"Alice"}}`))
		case "/system/info":
			_, _ = w.Write([]byte(`{"ServerName":"Den"}`))
		case "/sessions/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(jf.Close)

	cfg := config.Config{
		AppID:                 testAppID,
		PublicURL:             "http://cloud.test",
		WebPath:               t.TempDir(),
		ImageCacheSec:         60,
		AuthCookieName:        "jf_session",
		AuthSessionTTLMinutes: 60,
		AuthRegistrationMode:  "closed",
	}
	store := prefs.New(sqlDB, cfg.AppID)
	gw := jellyfin.New(store, jellyfin.Options{Logger: logging.Discard(), AppURL: cfg.AppURL()})

	return &harness{
		app:   newApp(deps{cfg: cfg, db: sqlDB, store: store, gw: gw, logger: logging.Discard()}),
		store: store,
		jf:    jf,
	}
}

func (h *harness) do(t *testing.T, method, path, cookie string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		r = strings.NewReader(string(payload))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", "jf_session="+cookie)
	}
	resp, err := h.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (h *harness) register(t *testing.T) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/apps/"+testAppID+"/auth/register", "",
		map[string]string{"username": "Alice", "password": "pw"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 from register, got %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "jf_session" {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestConnectAndDisconnect(t *testing.T) {
	h := newHarness(t)
	session := h.register(t)
	ctx := context.Background()

	resp := h.do(t, http.MethodPut, "/apps/"+testAppID+"/config", session, map[string]any{
		"values": map[string]any{"server_url": h.jf.URL, "login": "alice", "password": "pw"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["token"] != "yes" || out["server_name"] != "Den" {
		t.Errorf("unexpected login response %v", out)
	}
	if v, _ := h.store.UserValue(ctx, "alice", prefs.KeyToken, ""); v != "tok" {
		t.Errorf("Expected stored token, got %q", v)
	}

	resp = h.do(t, http.MethodPut, "/index.php/apps/"+testAppID+"/config", session, map[string]any{
		"values": map[string]any{"user_name": ""},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	for _, key := range prefs.IdentityKeys {
		if v, _ := h.store.UserValue(ctx, "alice", key, ""); v != "" {
			t.Errorf("Expected %s cleared, got %q", key, v)
		}
	}
	if v, _ := h.store.UserValue(ctx, "alice", prefs.KeyServerURL, ""); v != h.jf.URL {
		t.Errorf("Expected server_url kept, got %q", v)
	}
}

func TestAnonymousRoutes(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/apps/"+testAppID+"/search?term=x", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous search, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodPut, "/apps/"+testAppID+"/admin-config", "", map[string]any{"values": map[string]any{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous admin config, got %d", resp.StatusCode)
	}

	for _, path := range []string{"/auth/me", "/settings/personal", "/settings/admin", "/auth/users"} {
		resp = h.do(t, http.MethodGet, "/index.php/apps/"+testAppID+path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401 for anonymous %s, got %d", path, resp.StatusCode)
		}
	}

	resp = h.do(t, http.MethodGet, "/apps/"+testAppID+"/avatar/guest/Bob/64", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for avatar, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for health, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestImageFallsBackToAvatar(t *testing.T) {
	h := newHarness(t)
	session := h.register(t)

	resp := h.do(t, http.MethodGet, "/apps/"+testAppID+"/items/abc/images/primary?fallbackName=Foo", session, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "http://cloud.test/apps/"+testAppID+"/avatar/guest/Foo/44") {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestRenderConnections(t *testing.T) {
	out := renderConnections([]prefs.Connection{
		{ServerURL: "http://global"},
		{UserID: "alice", ServerURL: "http://alice", ServerName: "Den", JellyfinUser: "Alice", HasToken: true},
	})
	for _, want := range []string{"(app)", "http://global", "alice", "Den", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in table:\n%s", want, out)
		}
	}

	var b strings.Builder
	writeConnections(&b, nil)
	if !strings.Contains(b.String(), "No Jellyfin connections") {
		t.Errorf("unexpected empty output %q", b.String())
	}
}

func TestLogFormat(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := logFormat("json", f); got != "json" {
		t.Errorf("Expected explicit format kept, got %q", got)
	}
	if got := logFormat("", f); got != "text" {
		t.Errorf("Expected text for a regular file, got %q", got)
	}
}
