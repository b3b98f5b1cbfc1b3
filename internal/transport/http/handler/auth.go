package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/internal/transport/http/middleware"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service service.AuthService
	timeout time.Duration
	logger  *zap.Logger
}

func NewAuthHandler(service service.AuthService, timeout time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

type authUserResponse struct {
	*domain.User
	AccessToken string `json:"accessToken"`
}

func authResponse(result *domain.AuthResult) fiber.Map {
	data := fiber.Map{
		"user": authUserResponse{
			User:        result.User,
			AccessToken: result.AccessToken,
		},
	}
	if result.CartID != nil {
		data["cart_id"] = *result.CartID
	}

	return data
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.RegisterInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.Register(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "auth.register")
	}

	return successMessage(c, fiber.StatusCreated, authResponse(result), "Registration successful")
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.LoginInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.Login(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "auth.login")
	}

	return successMessage(c, fiber.StatusOK, authResponse(result), "Login successful")
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	userID, ok := middleware.UserID(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "unauthorized", "Missing user")
	}

	user, err := h.service.Me(ctx, userID)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "auth.me")
	}

	return success(c, fiber.StatusOK, fiber.Map{"user": user})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.ForgotPasswordInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.service.ForgotPassword(ctx, input); err != nil {
		return handleError(ctx, c, h.logger, err, "auth.forgot_password")
	}

	return successMessage(c, fiber.StatusAccepted, nil, "If the email is registered, a reset link is on its way")
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.ResetPasswordInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.service.ResetPassword(ctx, input); err != nil {
		return handleError(ctx, c, h.logger, err, "auth.reset_password")
	}

	return successMessage(c, fiber.StatusOK, nil, "Password updated")
}
