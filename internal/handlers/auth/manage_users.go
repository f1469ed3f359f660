package auth

import (
	"context"
	"database/sql"
	"strings"

	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/middleware"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/crypto/bcrypt"
)

type AppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// PrefsRemover drops every stored preference of one account.
type PrefsRemover interface {
	DeleteUser(ctx context.Context, userID string) error
}

func ListUsers(db *sql.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		rows, err := db.QueryContext(c.Context(), `
			SELECT id, username, role, COALESCE(strftime('%Y-%m-%dT%H:%M:%SZ', created_at), '')
			FROM app_user ORDER BY id ASC`)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		defer rows.Close()
		out := make([]AppUser, 0, 8)
		for rows.Next() {
			var u AppUser
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err == nil {
				out = append(out, u)
			}
		}
		return c.JSON(out)
	}
}

type createUserReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func CreateUser(db *sql.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req createUserReq
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username and password required"})
		}
		if req.Role == "" {
			req.Role = "user"
		}
		role := normalizeRole(req.Role)
		if role == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "role must be 'admin' or 'user'"})
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
		return c.Status(fiber.StatusCreated).JSON(userJSON(&middleware.User{ID: id, Username: req.Username, Role: role}))
	}
}

// Usernames are immutable because they scope stored preferences; only role
// and password can change.
type updateUserReq struct {
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func UpdateUser(db *sql.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Params("id")
		var req updateUserReq
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}

		var u middleware.User
		if err := db.QueryRowContext(c.Context(), `SELECT id, username, role FROM app_user WHERE id = ?`, id).
			Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}

		if req.Role != nil {
			role := normalizeRole(*req.Role)
			if role == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "role must be 'admin' or 'user'"})
			}
			if u.IsAdmin() && role != "admin" {
				if ok, err := hasAnotherAdmin(c.Context(), db, u.ID); err != nil || !ok {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot demote the last admin"})
				}
			}
			if _, err := db.ExecContext(c.Context(), `UPDATE app_user SET role = ? WHERE id = ?`, role, u.ID); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
			u.Role = role
		}
		if req.Password != nil {
			if strings.TrimSpace(*req.Password) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "password cannot be empty"})
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "hash error"})
			}
			if _, err := db.ExecContext(c.Context(), `UPDATE app_user SET password_hash = ? WHERE id = ?`, string(hash), u.ID); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
		}
		return c.JSON(userJSON(&u))
	}
}

// DeleteUser removes the account, its sessions (FK cascade) and its stored
// Jellyfin connection.
func DeleteUser(db *sql.DB, store PrefsRemover) fiber.Handler {
	return func(c fiber.Ctx) error {
		var u middleware.User
		if err := db.QueryRowContext(c.Context(), `SELECT id, username, role FROM app_user WHERE id = ?`, c.Params("id")).
			Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		if u.IsAdmin() {
			if ok, err := hasAnotherAdmin(c.Context(), db, u.ID); err != nil || !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot delete the last admin"})
			}
		}

		if _, err := db.ExecContext(c.Context(), `DELETE FROM app_user WHERE id = ?`, u.ID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if err := store.DeleteUser(c.Context(), u.PrefsID()); err != nil {
			logging.Warn("failed to remove preferences of deleted user", "user", u.Username, "error", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func normalizeRole(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	switch r {
	case "admin", "user":
		return r
	default:
		return ""
	}
}

func hasAnotherAdmin(ctx context.Context, db *sql.DB, excludeID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_user WHERE lower(role) = 'admin' AND id <> ?`, excludeID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
