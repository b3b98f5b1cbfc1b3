package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/pkg/token"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const defaultTimeout = 4 * time.Second

func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func successMessage(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"message": message,
	})
}

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorBody{
		Error:      code,
		Message:    message,
		StatusCode: status,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, "bad_request", message)
}

// handleError maps service and repository errors onto HTTP statuses.
// Anything unrecognised is logged and reported as a generic 500.
func handleError(ctx context.Context, c *fiber.Ctx, logger *zap.Logger, err error, op string) error {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorBody{
			Error:      "validation_error",
			Message:    validationErr.Error(),
			StatusCode: fiber.StatusBadRequest,
			Fields:     validationErr.Fields,
		})
	}

	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrSubscriptionNotFound),
		errors.Is(err, repository.ErrContactNotFound):
		return fail(c, fiber.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, repository.ErrUserAlreadyExists),
		errors.Is(err, repository.ErrProductSKUDuplicate):
		return fail(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, domain.ErrInvalidTransition):
		return fail(c, fiber.StatusUnprocessableEntity, "invalid_transition", err.Error())

	case errors.Is(err, service.ErrEmptyCart):
		return fail(c, fiber.StatusUnprocessableEntity, "empty_cart", err.Error())

	case errors.Is(err, domain.ErrOwnerRequired),
		errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, service.ErrNothingToUpdate),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, repository.ErrInvalidResetToken):
		return badRequest(c, err.Error())

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken):
		return fail(c, fiber.StatusUnauthorized, "unauthorized", err.Error())

	case errors.Is(err, service.ErrForbidden):
		return fail(c, fiber.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		mylogger.Warn(ctx, logger, "Circuit breaker open", zap.String("op", op))
		return fail(c, fiber.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable")

	case errors.Is(err, context.DeadlineExceeded):
		mylogger.Warn(ctx, logger, "Request timed out", zap.String("op", op))
		return fail(c, fiber.StatusGatewayTimeout, "timeout", "Request timed out")
	}

	mylogger.Error(
		ctx,
		logger,
		"Request failed",
		zap.String("op", op),
		zap.Error(err),
	)

	return fail(c, fiber.StatusInternalServerError, "internal_error", "Internal server error")
}

func parseID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " is invalid")
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " is invalid")
	}
	return v, nil
}

// ErrorHandler renders errors that escape handlers, including fiber's own
// 404/405 and body-limit errors, in the common error shape.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fail(c, fiberErr.Code, "http_error", fiberErr.Message)
		}

		return handleError(c.UserContext(), c, logger, err, c.Route().Path)
	}
}
