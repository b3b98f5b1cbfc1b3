package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/pkg/token"
)

const (
	LocalUserID = "userId"
	LocalRole   = "role"
	LocalEmail  = "email"
)

type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken string) (*token.Claims, error)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":      "unauthorized",
		"message":    message,
		"statusCode": fiber.StatusUnauthorized,
	})
}

func forbidden(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":      "forbidden",
		"message":    message,
		"statusCode": fiber.StatusForbidden,
	})
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}

	return parts[1], true
}

func authenticate(c *fiber.Ctx, validator TokenValidator, accessToken string) error {
	claims, err := validator.ValidateToken(c.UserContext(), accessToken)
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}

	c.Locals(LocalUserID, claims.UserID)
	c.Locals(LocalRole, claims.Role)
	c.Locals(LocalEmail, claims.Email)

	return c.Next()
}

// NewAuthMiddleware rejects requests without a valid bearer token.
func NewAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken, present := bearerToken(c)
		if !present {
			return unauthorized(c, "Missing authorization header")
		}
		if accessToken == "" {
			return unauthorized(c, "Invalid authorization header format")
		}

		return authenticate(c, validator, accessToken)
	}
}

// NewOptionalAuthMiddleware lets anonymous requests through but still
// rejects a malformed or invalid token.
func NewOptionalAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken, present := bearerToken(c)
		if !present {
			return c.Next()
		}
		if accessToken == "" {
			return unauthorized(c, "Invalid authorization header format")
		}

		return authenticate(c, validator, accessToken)
	}
}

func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Role(c) != role {
			return forbidden(c, "Insufficient permissions")
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(LocalUserID).(int64)
	return id, ok && id > 0
}

func Role(c *fiber.Ctx) domain.Role {
	role, _ := c.Locals(LocalRole).(domain.Role)
	return role
}

func IsAdmin(c *fiber.Ctx) bool {
	return Role(c) == domain.RoleAdmin
}

// RequireUser rejects requests that did not pass bearer authentication.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := UserID(c); !ok {
			return unauthorized(c, "Login required")
		}
		return c.Next()
	}
}
