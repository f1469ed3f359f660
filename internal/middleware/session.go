package middleware

import (
	"database/sql"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// User is the signed-in account of the current request.
type User struct {
	ID       int64
	Username string
	Role     string
}

// PrefsID is the key under which this user's preferences are stored.
func (u *User) PrefsID() string {
	return strings.ToLower(u.Username)
}

func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, "admin")
}

const userLocalsKey = "app_user"

// AttachUser resolves the session cookie and stores the user in Locals.
// Requests without a valid session pass through anonymously.
func AttachUser(db *sql.DB, cookieName string) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := c.Cookies(cookieName)
		if token != "" {
			var u User
			err := db.QueryRowContext(c.Context(), `
                SELECT u.id, u.username, u.role
                FROM app_session s JOIN app_user u ON u.id = s.user_id
                WHERE s.token = ? AND s.expires_at > ?
            `, token, nowUTC()).Scan(&u.ID, &u.Username, &u.Role)
			if err == nil {
				SetUser(c, &u)
			}
		}
		return c.Next()
	}
}

// SetUser attaches u to the request.
func SetUser(c fiber.Ctx, u *User) {
	c.Locals(userLocalsKey, u)
}

// CurrentUser returns the signed-in user, or nil.
func CurrentUser(c fiber.Ctx) *User {
	u, _ := c.Locals(userLocalsKey).(*User)
	return u
}

// UserID is the preference scope of the request; "" when anonymous.
func UserID(c fiber.Ctx) string {
	if u := CurrentUser(c); u != nil {
		return u.PrefsID()
	}
	return ""
}

// RequireUser rejects anonymous requests.
func RequireUser() fiber.Handler {
	return func(c fiber.Ctx) error {
		if CurrentUser(c) == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
		}
		return c.Next()
	}
}

// AdminAccess allows access if either a valid admin session is present or a valid ADMIN_TOKEN is provided.
// With no token configured only an admin session passes.
func AdminAccess(adminToken string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if u := CurrentUser(c); u != nil && u.IsAdmin() {
			return c.Next()
		}
		if hasAdminToken(c, adminToken) {
			return c.Next()
		}
		return unauthorizedAdmin(c)
	}
}
