package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"
	"jellyfin-integration/internal/prefs"

	"github.com/gofiber/fiber/v3"
)

type testEnv struct {
	app   *fiber.App
	db    *sql.DB
	store *prefs.Store
}

func setup(t *testing.T, mode string) *testEnv {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.MigrateUp(sqlDB, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		AuthCookieName:         "jf_session",
		AuthSessionTTLMinutes:  60,
		AuthRegistrationMode:   mode,
		AuthRegistrationSecret: "letmein",
	}
	store := prefs.New(sqlDB, "integration_jellyfin")

	app := fiber.New()
	app.Use(middleware.AttachUser(sqlDB, cfg.AuthCookieName))
	app.Post("/register", RegisterHandler(sqlDB, cfg))
	app.Post("/login", LoginHandler(sqlDB, cfg))
	app.Post("/logout", LogoutHandler(sqlDB, cfg))
	app.Get("/me", MeHandler())
	app.Get("/users", ListUsers(sqlDB))
	app.Post("/users", CreateUser(sqlDB))
	app.Patch("/users/:id", UpdateUser(sqlDB))
	app.Delete("/users/:id", DeleteUser(sqlDB, store))

	return &testEnv{app: app, db: sqlDB, store: store}
}

func (e *testEnv) call(t *testing.T, method, path, cookie string, body any) *http.Response {
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
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "jf_session" {
			return c.Value
		}
	}
	return ""
}

func TestFirstRegistrationBecomesAdmin(t *testing.T) {
	e := setup(t, "closed")

	resp := e.call(t, http.MethodPost, "/register", "", credentials{Username: "Alice", Password: "pw"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.User.Role != "admin" {
		t.Errorf("Expected admin role, got %q", out.User.Role)
	}
	if sessionCookie(resp) == "" {
		t.Error("Expected a session cookie")
	}

	second := e.call(t, http.MethodPost, "/register", "", credentials{Username: "bob", Password: "pw"})
	second.Body.Close()
	if second.StatusCode != http.StatusForbidden {
		t.Errorf("Expected closed registration to refuse, got %d", second.StatusCode)
	}
}

func TestSecretRegistration(t *testing.T) {
	e := setup(t, "secret")
	e.call(t, http.MethodPost, "/register", "", credentials{Username: "admin", Password: "pw"}).Body.Close()

	resp := e.call(t, http.MethodPost, "/register", "", credentials{Username: "bob", Password: "pw", Secret: "nope"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected wrong secret to be refused, got %d", resp.StatusCode)
	}

	resp = e.call(t, http.MethodPost, "/register", "", credentials{Username: "bob", Password: "pw", Secret: "letmein"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201 with secret, got %d", resp.StatusCode)
	}
}

func TestLoginMeLogout(t *testing.T) {
	e := setup(t, "closed")
	e.call(t, http.MethodPost, "/register", "", credentials{Username: "alice", Password: "pw"}).Body.Close()

	bad := e.call(t, http.MethodPost, "/login", "", credentials{Username: "alice", Password: "wrong"})
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", bad.StatusCode)
	}

	resp := e.call(t, http.MethodPost, "/login", "", credentials{Username: "ALICE", Password: "pw"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	token := sessionCookie(resp)

	me := e.call(t, http.MethodGet, "/me", token, nil)
	me.Body.Close()
	if me.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /me, got %d", me.StatusCode)
	}

	e.call(t, http.MethodPost, "/logout", token, nil).Body.Close()
	me = e.call(t, http.MethodGet, "/me", token, nil)
	me.Body.Close()
	if me.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", me.StatusCode)
	}
}

func TestDeleteUserDropsPreferences(t *testing.T) {
	e := setup(t, "closed")
	ctx := context.Background()
	e.call(t, http.MethodPost, "/register", "", credentials{Username: "admin", Password: "pw"}).Body.Close()

	resp := e.call(t, http.MethodPost, "/users", "", createUserReq{Username: "Bob", Password: "pw"})
	var created AppUser
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.Role != "user" {
		t.Fatalf("unexpected create result %d %+v", resp.StatusCode, created)
	}

	if err := e.store.SetUserValue(ctx, "bob", prefs.KeyToken, "tok"); err != nil {
		t.Fatal(err)
	}

	resp = e.call(t, http.MethodDelete, "/users/2", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	if v, _ := e.store.UserValue(ctx, "bob", prefs.KeyToken, ""); v != "" {
		t.Errorf("Expected preferences removed, got %q", v)
	}
}

func TestLastAdminIsProtected(t *testing.T) {
	e := setup(t, "closed")
	e.call(t, http.MethodPost, "/register", "", credentials{Username: "admin", Password: "pw"}).Body.Close()

	resp := e.call(t, http.MethodDelete, "/users/1", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 deleting last admin, got %d", resp.StatusCode)
	}

	role := "user"
	resp = e.call(t, http.MethodPatch, "/users/1", "", updateUserReq{Role: &role})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 demoting last admin, got %d", resp.StatusCode)
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{"Admin": "admin", " user ": "user", "root": ""}
	for in, want := range cases {
		if got := normalizeRole(in); got != want {
			t.Errorf("normalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}
