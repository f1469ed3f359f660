// Package prefs is the credential store: per-user and app-global key/value
// preferences, namespaced by the app identifier.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jellyfin-integration/internal/db"
)

// Keys shared by the gateway, handlers and adapters.
const (
	KeyServerURL          = "server_url"
	KeyServerName         = "server_name"
	KeyServerID           = "server_id"
	KeyToken              = "token"
	KeyUserID             = "user_id"
	KeyUserName           = "user_name"
	KeySearchItemsEnabled = "search_items_enabled"
	KeyNavigationEnabled  = "navigation_enabled"
	KeyLinkPreviewEnabled = "link_preview_enabled"
)

// IdentityKeys are cleared together when a user disconnects.
var IdentityKeys = []string{KeyToken, KeyServerID, KeyUserID, KeyUserName, KeyServerName}

// appScope is the user_id column value for app-global rows.
const appScope = ""

type Store struct {
	db    *sql.DB
	appID string
}

func New(sqlDB *sql.DB, appID string) *Store {
	return &Store{db: sqlDB, appID: appID}
}

// AppID is the namespace this store reads and writes.
func (s *Store) AppID() string { return s.appID }

// AppValue returns an app-global value or def when unset.
func (s *Store) AppValue(ctx context.Context, key, def string) (string, error) {
	return s.get(ctx, appScope, key, def)
}

// UserValue returns a per-user value or def when unset.
func (s *Store) UserValue(ctx context.Context, userID, key, def string) (string, error) {
	if userID == "" {
		return def, nil
	}
	return s.get(ctx, userID, key, def)
}

// Credentials is one Jellyfin connection, read from a single scope.
type Credentials struct {
	ServerURL  string
	ServerName string
	Token      string
	UserID     string
}

// connectionKeys are the values that make up a connection. A scope holding
// any of them owns its connection outright.
var connectionKeys = []string{KeyServerURL, KeyServerName, KeyServerID, KeyToken, KeyUserID, KeyUserName}

// Credentials resolves the connection for userID. When the user scope holds
// any connection value the whole tuple comes from it, even if incomplete;
// only a user with nothing stored falls back to the app-global connection.
// An empty userID reads the app-global connection.
func (s *Store) Credentials(ctx context.Context, userID string) (Credentials, error) {
	if userID != "" {
		creds, owned, err := s.scopeCredentials(ctx, userID)
		if err != nil || owned {
			return creds, err
		}
	}
	creds, _, err := s.scopeCredentials(ctx, appScope)
	return creds, err
}

func (s *Store) scopeCredentials(ctx context.Context, userID string) (Credentials, bool, error) {
	args := make([]any, 0, len(connectionKeys)+2)
	args = append(args, s.appID, userID)
	for _, k := range connectionKeys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(connectionKeys)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE app_id = ? AND user_id = ? AND value <> '' AND key IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}
	defer rows.Close()

	var (
		creds Credentials
		owned bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credentials{}, false, fmt.Errorf("scan credentials: %w", err)
		}
		owned = true
		switch key {
		case KeyServerURL:
			creds.ServerURL = value
		case KeyServerName:
			creds.ServerName = value
		case KeyToken:
			creds.Token = value
		case KeyUserID:
			creds.UserID = value
		}
	}
	if err := rows.Err(); err != nil {
		return Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}
	return creds, owned, nil
}

func (s *Store) get(ctx context.Context, userID, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE app_id = ? AND user_id = ? AND key = ?`,
		s.appID, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetAppValue(ctx context.Context, key, value string) error {
	return s.set(ctx, appScope, key, value)
}

func (s *Store) SetUserValue(ctx context.Context, userID, key, value string) error {
	if userID == "" {
		return errors.New("set user preference: empty user id")
	}
	return s.set(ctx, userID, key, value)
}

func (s *Store) set(ctx context.Context, userID, key, value string) error {
	_, err := db.ExecWithRetry(ctx, s.db, `
		INSERT INTO preferences (app_id, user_id, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_id, user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.appID, userID, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}

// DeleteUserValues removes all keys for userID in a single statement, so
// either every key is gone afterwards or none is.
func (s *Store) DeleteUserValues(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+2)
	args = append(args, s.appID, userID)
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := `DELETE FROM preferences WHERE app_id = ? AND user_id = ? AND key IN (` + placeholders + `)`
	if _, err := db.ExecWithRetry(ctx, s.db, query, args...); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// DeleteUser removes every preference stored for userID.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("delete user preferences: empty user id")
	}
	if _, err := db.ExecWithRetry(ctx, s.db,
		`DELETE FROM preferences WHERE app_id = ? AND user_id = ?`, s.appID, userID); err != nil {
		return fmt.Errorf("delete user preferences: %w", err)
	}
	return nil
}

// Enabled reads a "1"/"0" user flag.
func (s *Store) Enabled(ctx context.Context, userID, key string, def bool) bool {
	d := "0"
	if def {
		d = "1"
	}
	v, err := s.UserValue(ctx, userID, key, d)
	if err != nil {
		return def
	}
	return v == "1"
}

// AppEnabled reads a "1"/"0" app-global flag.
func (s *Store) AppEnabled(ctx context.Context, key string, def bool) bool {
	d := "0"
	if def {
		d = "1"
	}
	v, err := s.AppValue(ctx, key, d)
	if err != nil {
		return def
	}
	return v == "1"
}

// Connection summarizes the stored Jellyfin link of one scope. UserID is ""
// for the app-global connection.
type Connection struct {
	UserID       string
	ServerURL    string
	ServerName   string
	JellyfinUser string
	HasToken     bool
	UpdatedAt    time.Time
}

// Connections lists every scope holding a server URL or token, app-global first.
func (s *Store) Connections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id,
		       MAX(CASE WHEN key = ? THEN value ELSE '' END),
		       MAX(CASE WHEN key = ? THEN value ELSE '' END),
		       MAX(CASE WHEN key = ? THEN value ELSE '' END),
		       MAX(CASE WHEN key = ? AND value <> '' THEN 1 ELSE 0 END),
		       MAX(updated_at)
		FROM preferences
		WHERE app_id = ?
		GROUP BY user_id
		HAVING MAX(CASE WHEN key IN (?, ?) AND value <> '' THEN 1 ELSE 0 END) = 1
		ORDER BY user_id`,
		KeyServerURL, KeyServerName, KeyUserName, KeyToken, s.appID, KeyServerURL, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		var (
			c       Connection
			token   int
			updated sql.NullString
		)
		if err := rows.Scan(&c.UserID, &c.ServerURL, &c.ServerName, &c.JellyfinUser, &token, &updated); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c.HasToken = token == 1
		c.UpdatedAt = parseTimestamp(updated.String)
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseTimestamp(s string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
