package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/internal/transport/http/middleware"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type AdminHandler struct {
	auth    service.AuthService
	store   *session.Store
	timeout time.Duration
	logger  *zap.Logger
}

func NewAdminHandler(auth service.AuthService, store *session.Store, timeout time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AdminHandler) Login(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	req := new(adminLoginRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "invalid request body")
	}

	admin, err := h.auth.AuthenticateAdmin(ctx, req.Email, req.Password)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "admin.login")
	}

	sess, err := h.store.Get(c)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "admin.login")
	}
	// Drop any pre-login session id.
	if err := sess.Regenerate(); err != nil {
		return handleError(ctx, c, h.logger, err, "admin.login")
	}

	sess.Set(middleware.SessionAdminEmail, admin.Email)
	sess.Set(middleware.SessionAdminID, admin.ID)
	sess.Set(middleware.SessionRole, string(domain.RoleAdmin))

	if err := sess.Save(); err != nil {
		return handleError(ctx, c, h.logger, err, "admin.login")
	}

	mylogger.Info(ctx, h.logger, "admin logged in", zap.String("email", admin.Email))

	return successMessage(c, fiber.StatusOK, fiber.Map{"email": admin.Email}, "Login successful")
}

func (h *AdminHandler) Logout(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	sess, err := h.store.Get(c)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "admin.logout")
	}

	if err := sess.Destroy(); err != nil {
		return handleError(ctx, c, h.logger, err, "admin.logout")
	}

	return successMessage(c, fiber.StatusOK, nil, "Logged out")
}

func (h *AdminHandler) ListCustomers(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return badRequest(c, err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}

	customers, err := h.auth.ListCustomers(ctx, limit, offset)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "admin.list_customers")
	}

	return success(c, fiber.StatusOK, customers)
}

func (h *AdminHandler) DeleteCustomer(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.auth.DeleteCustomer(ctx, id); err != nil {
		return handleError(ctx, c, h.logger, err, "admin.delete_customer")
	}

	mylogger.Info(ctx, h.logger, "customer deleted", zap.Int64("user_id", id))

	return successMessage(c, fiber.StatusOK, nil, "Customer deleted")
}
