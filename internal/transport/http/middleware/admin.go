package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

const (
	SessionAdminEmail = "admin_email"
	SessionAdminID    = "admin_id"
	SessionRole       = "role"
)

// NewAdminSessionMiddleware admits requests whose session cookie belongs to
// an admin login and exposes the admin through the same locals as bearer auth.
func NewAdminSessionMiddleware(store *session.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			mylogger.Warn(c.UserContext(), logger, "Failed to load admin session", zap.Error(err))
			return unauthorized(c, "Session expired")
		}

		role, _ := sess.Get(SessionRole).(string)
		email, _ := sess.Get(SessionAdminEmail).(string)
		if email == "" {
			return unauthorized(c, "Admin login required")
		}
		if domain.Role(role) != domain.RoleAdmin {
			return forbidden(c, "Admin role required")
		}

		id, _ := sess.Get(SessionAdminID).(int64)

		c.Locals(LocalUserID, id)
		c.Locals(LocalRole, domain.RoleAdmin)
		c.Locals(LocalEmail, email)

		return c.Next()
	}
}
