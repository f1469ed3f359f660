package health

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"

	"github.com/gofiber/fiber/v3"
)

type HealthStatus struct {
	OK        bool           `json:"ok"`
	Timestamp string         `json:"timestamp"`
	Database  DatabaseHealth `json:"database"`
	Storage   StorageHealth  `json:"storage"`
}

type DatabaseHealth struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	OpenConns      int    `json:"open_connections"`
	IdleConns      int    `json:"idle_connections"`
	ConnectionTime string `json:"connection_time"`
}

type StorageHealth struct {
	OK              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	AccountCount    int    `json:"account_count"`
	ConnectedUsers  int    `json:"connected_users"`
	PreferenceCount int    `json:"preference_count"`
}

// Health reports database reachability and how many accounts hold a
// Jellyfin connection for appID.
func Health(db *sql.DB, appID string) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx := c.Context()
		status := HealthStatus{
			OK:        true,
			Timestamp: time.Now().Format(time.RFC3339),
		}

		dbStart := time.Now()
		err := db.PingContext(ctx)
		status.Database.ConnectionTime = time.Since(dbStart).String()
		if err != nil {
			status.OK = false
			status.Database.Error = err.Error()
			logging.Debug("Database ping failed", "error", err)
		} else {
			status.Database.OK = true
			stats := db.Stats()
			status.Database.OpenConns = stats.OpenConnections
			status.Database.IdleConns = stats.Idle
		}

		if status.Database.OK {
			err = db.QueryRowContext(ctx, `
				SELECT
					(SELECT COUNT(*) FROM app_user),
					(SELECT COUNT(DISTINCT user_id) FROM preferences WHERE app_id = ? AND user_id <> '' AND key = 'token'),
					(SELECT COUNT(*) FROM preferences WHERE app_id = ?)
			`, appID, appID).Scan(&status.Storage.AccountCount, &status.Storage.ConnectedUsers, &status.Storage.PreferenceCount)
			if err != nil {
				status.OK = false
				status.Storage.Error = "Failed to count preferences: " + err.Error()
			} else {
				status.Storage.OK = true
			}
		}

		if !status.OK {
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		return c.JSON(status)
	}
}

type Requester interface {
	Request(ctx context.Context, userID, endpoint string, params jellyfin.Params, method string) jellyfin.Result[jellyfin.Object]
}

// GET /health/jellyfin probes the caller's server with the public info call.
func Jellyfin(gw Requester) fiber.Handler {
	return func(c fiber.Ctx) error {
		info, err := gw.Request(c.Context(), middleware.UserID(c), "system/info/public", nil, http.MethodGet).Unwrap()
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"ok":          true,
			"server_name": info.String("ServerName"),
			"version":     info.String("Version"),
		})
	}
}
