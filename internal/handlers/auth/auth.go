// Package auth owns the local accounts that play the host role: every
// Jellyfin connection belongs to one of these users.
package auth

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Secret   string `json:"secret"`
}

func userJSON(u *middleware.User) fiber.Map {
	return fiber.Map{"id": u.ID, "username": u.Username, "role": u.Role}
}

func findUser(ctx context.Context, db *sql.DB, username string) (*middleware.User, string, error) {
	var u middleware.User
	var hash string
	err := db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM app_user WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Role, &hash)
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

func countUsers(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&n)
	return n, err
}

func createSession(ctx context.Context, db *sql.DB, userID int64, ttl time.Duration) (string, time.Time, error) {
	token := uuid.NewString()
	expires := time.Now().UTC().Add(ttl)
	_, err := db.ExecContext(ctx,
		`INSERT INTO app_session (token, user_id, expires_at) VALUES (?, ?, ?)`, token, userID, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func sessionTTL(cfg config.Config) time.Duration {
	if cfg.AuthSessionTTLMinutes <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(cfg.AuthSessionTTLMinutes) * time.Minute
}

func LoginHandler(db *sql.DB, cfg config.Config) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req credentials
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username and password required"})
		}
		u, hash, err := findUser(c.Context(), db, req.Username)
		if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
		}
		token, exp, err := createSession(c.Context(), db, u.ID, sessionTTL(cfg))
		if err != nil {
			logging.Error("failed to create session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session error"})
		}
		setAuthCookie(c, cfg.AuthCookieName, token, exp)
		return c.JSON(fiber.Map{"user": userJSON(u)})
	}
}

func LogoutHandler(db *sql.DB, cfg config.Config) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token := c.Cookies(cfg.AuthCookieName); token != "" {
			_, _ = db.ExecContext(c.Context(), `DELETE FROM app_session WHERE token = ?`, token)
		}
		setAuthCookie(c, cfg.AuthCookieName, "", time.Unix(0, 0))
		return c.SendStatus(http.StatusNoContent)
	}
}

// RegisterHandler creates an account. The very first account is always
// allowed and becomes admin; later ones follow AUTH_REGISTRATION_MODE.
func RegisterHandler(db *sql.DB, cfg config.Config) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req credentials
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username and password required"})
		}
		if req.Secret == "" {
			req.Secret = c.Get("X-Registration-Secret")
		}

		role, allowed := registrationRole(c.Context(), db, cfg, req.Secret)
		if !allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "registration disabled"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "hash error"})
		}
		res, err := db.ExecContext(c.Context(),
			`INSERT INTO app_user (username, password_hash, role) VALUES (?, ?, ?)`, req.Username, string(hash), role)
		if err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "username taken"})
		}
		id, _ := res.LastInsertId()
		u := &middleware.User{ID: id, Username: req.Username, Role: role}

		token, exp, err := createSession(c.Context(), db, id, sessionTTL(cfg))
		if err != nil {
			logging.Error("failed to create session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session error"})
		}
		setAuthCookie(c, cfg.AuthCookieName, token, exp)
		return c.Status(http.StatusCreated).JSON(fiber.Map{"user": userJSON(u)})
	}
}

// MeHandler reports the session user attached by middleware.AttachUser.
func MeHandler() fiber.Handler {
	return func(c fiber.Ctx) error {
		u := middleware.CurrentUser(c)
		if u == nil {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.JSON(userJSON(u))
	}
}

func registrationRole(ctx context.Context, db *sql.DB, cfg config.Config, secret string) (string, bool) {
	if n, err := countUsers(ctx, db); err == nil && n == 0 {
		return "admin", true
	}
	switch cfg.AuthRegistrationMode {
	case "open":
		return "user", true
	case "secret":
		if secret != "" && secret == cfg.AuthRegistrationSecret {
			return "user", true
		}
	}
	return "", false
}

func setAuthCookie(c fiber.Ctx, name, token string, exp time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    token,
		Expires:  exp,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}
