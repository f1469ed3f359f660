// Package config serves the settings writes: plain key/value updates, the
// Jellyfin login flow and disconnecting.
package config

import (
	"context"
	"fmt"
	"net/http"

	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"
	"jellyfin-integration/internal/prefs"

	"github.com/gofiber/fiber/v3"
)

// Store is the write side of the credential store. An empty userID
// addresses the app-global scope in DeleteUserValues.
type Store interface {
	SetAppValue(ctx context.Context, key, value string) error
	SetUserValue(ctx context.Context, userID, key, value string) error
	DeleteUserValues(ctx context.Context, userID string, keys ...string) error
}

// Gateway is the subset of *jellyfin.Client used here.
type Gateway interface {
	Login(ctx context.Context, serverURL, username, password string) jellyfin.Result[jellyfin.Object]
	Logout(ctx context.Context, userID string) jellyfin.Result[jellyfin.Object]
	Request(ctx context.Context, userID, endpoint string, params jellyfin.Params, method string) jellyfin.Result[jellyfin.Object]
}

type setConfigReq struct {
	Values map[string]any `json:"values"`
}

// scope writes either one user's values or the app-global ones.
type scope struct {
	store  Store
	userID string
}

func (s scope) set(ctx context.Context, key, value string) error {
	if s.userID == "" {
		return s.store.SetAppValue(ctx, key, value)
	}
	return s.store.SetUserValue(ctx, s.userID, key, value)
}

// SetConfig handles PUT /config for the signed-in user.
func SetConfig(store Store, gw Gateway, logger logging.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
		}
		return apply(c, scope{store: store, userID: userID}, gw, logger)
	}
}

// SetAdminConfig handles PUT /admin-config; every write lands in the
// app-global scope that users fall back to.
func SetAdminConfig(store Store, gw Gateway, logger logging.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		return apply(c, scope{store: store}, gw, logger)
	}
}

func apply(c fiber.Ctx, sc scope, gw Gateway, logger logging.Logger) error {
	var req setConfigReq
	if err := c.Bind().Body(&req); err != nil || req.Values == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "values required"})
	}
	ctx := c.Context()
	log := logger.With("scope", scopeName(sc))

	serverURL, hasURL := req.Values["server_url"].(string)
	login, hasLogin := req.Values["login"].(string)
	password, hasPassword := req.Values["password"].(string)
	if hasURL && hasLogin && hasPassword {
		return c.JSON(loginWithCredentials(ctx, sc, gw, log, serverURL, login, password))
	}

	if name, ok := req.Values[prefs.KeyUserName]; ok && stringify(name) == "" {
		// Remote logout is best effort; local credentials go regardless.
		if res := gw.Logout(ctx, sc.userID); res.IsErr() {
			log.Debug("Jellyfin logout failed", "error", res.Err().Message)
		}
		if err := sc.store.DeleteUserValues(ctx, sc.userID, prefs.IdentityKeys...); err != nil {
			log.Error("failed to clear Jellyfin credentials", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage error"})
		}
		log.Info("Jellyfin account disconnected")
		return c.JSON(fiber.Map{})
	}

	for key, value := range req.Values {
		if err := sc.set(ctx, key, stringify(value)); err != nil {
			log.Error("failed to store setting", "key", key, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage error"})
		}
	}
	return c.JSON(fiber.Map{})
}

func loginWithCredentials(ctx context.Context, sc scope, gw Gateway, log logging.Logger, serverURL, login, password string) fiber.Map {
	failed := fiber.Map{"user_id": "", "user_name": ""}

	payload, err := gw.Login(ctx, serverURL, login, password).Unwrap()
	if err != nil {
		log.Info("Jellyfin login rejected", "server_url", serverURL, "error", err.Error())
		return failed
	}
	user := payload.Object("User")
	token, serverID := payload.String("AccessToken"), payload.String("ServerId")
	userID, userName := user.String("Id"), user.String("Name")
	if token == "" || serverID == "" || userID == "" || userName == "" {
		log.Warn("Jellyfin login response is missing identity fields", "server_url", serverURL)
		return failed
	}

	identity := []struct{ key, value string }{
		{prefs.KeyServerURL, serverURL},
		{prefs.KeyToken, token},
		{prefs.KeyServerID, serverID},
		{prefs.KeyUserID, userID},
		{prefs.KeyUserName, userName},
	}
	for _, kv := range identity {
		if err := sc.set(ctx, kv.key, kv.value); err != nil {
			log.Error("failed to store Jellyfin identity", "key", kv.key, "error", err)
			return failed
		}
	}

	serverName := ""
	if info := gw.Request(ctx, sc.userID, "system/info", nil, http.MethodGet); !info.IsErr() {
		serverName = info.Value().String("ServerName")
	}
	if serverName != "" {
		if err := sc.set(ctx, prefs.KeyServerName, serverName); err != nil {
			log.Warn("failed to store server name", "error", err)
		}
	}

	log.Info("Jellyfin account connected", "jellyfin_user", userName, "server_id", serverID)
	return fiber.Map{
		"user_id":     userID,
		"user_name":   userName,
		"server_id":   serverID,
		"server_name": serverName,
		"token":       "yes",
	}
}

// stringify turns JSON settings values into stored strings; booleans use
// the "1"/"0" convention of the feature flags.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func scopeName(sc scope) string {
	if sc.userID == "" {
		return "app"
	}
	return "user"
}
