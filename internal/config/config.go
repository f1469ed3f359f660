package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAppID namespaces every stored preference and every mounted route.
const DefaultAppID = "integration_jellyfin"

type Config struct {
	AppID     string
	PublicURL string // absolute base URL this service is reachable under
	Port      string

	SQLitePath string
	WebPath    string

	// Outbound Jellyfin calls
	JellyfinTimeoutSec int

	// Image proxy
	ImageCacheSec int

	// Logging
	LogLevel  string
	LogFormat string // "json", "text", "dev"; empty picks dev on a terminal
	LogFile   string
	LogSource bool

	// Admin / auth
	AdminToken             string
	AuthCookieName         string
	AuthSessionTTLMinutes  int
	AuthSessionSweepMin    int
	AuthRegistrationMode   string // "closed", "open", "secret"
	AuthRegistrationSecret string
}

func Load() Config {
	dbPath := env("SQLITE_PATH", "/var/lib/jellyfin-integration/prefs.db")
	webPath := env("WEB_PATH", "/app/web")

	_ = os.MkdirAll(filepath.Dir(dbPath), 0755)

	return Config{
		AppID:                  env("APP_ID", DefaultAppID),
		PublicURL:              strings.TrimRight(env("PUBLIC_URL", "http://localhost:8080"), "/"),
		Port:                   env("PORT", "8080"),
		SQLitePath:             dbPath,
		WebPath:                webPath,
		JellyfinTimeoutSec:     envInt("JELLYFIN_TIMEOUT_SEC", 30),
		ImageCacheSec:          envInt("IMAGE_CACHE_SEC", 60*60*24),
		LogLevel:               env("LOG_LEVEL", "info"),
		LogFormat:              env("LOG_FORMAT", ""),
		LogFile:                env("LOG_FILE", ""),
		LogSource:              envBool("LOG_ADD_SOURCE", false),
		AdminToken:             env("ADMIN_TOKEN", ""),
		AuthCookieName:         env("AUTH_COOKIE_NAME", "jf_session"),
		AuthSessionTTLMinutes:  envInt("AUTH_SESSION_TTL_MINUTES", 60*24*7),
		AuthSessionSweepMin:    envInt("AUTH_SESSION_SWEEP_MINUTES", 60),
		AuthRegistrationMode:   strings.ToLower(env("AUTH_REGISTRATION_MODE", "closed")),
		AuthRegistrationSecret: env("AUTH_REGISTRATION_SECRET", ""),
	}
}

// AppURL is the absolute prefix of every route this app serves.
func (c Config) AppURL() string {
	return c.PublicURL + c.AppPath()
}

// AppPath is the route prefix relative to the public URL.
func (c Config) AppPath() string {
	return "/apps/" + c.AppID
}

func (c Config) JellyfinTimeout() time.Duration {
	if c.JellyfinTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.JellyfinTimeoutSec) * time.Second
}

func (c Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.AuthSessionSweepMin) * time.Minute
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
