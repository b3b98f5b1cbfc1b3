package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type EmailHandler struct {
	service service.EmailService
	timeout time.Duration
	logger  *zap.Logger
}

func NewEmailHandler(service service.EmailService, timeout time.Duration, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

// Send queues an email for the notification consumer; delivery is async.
func (h *EmailHandler) Send(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	req := new(domain.EmailRequest)
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	if err := h.service.Enqueue(ctx, req); err != nil {
		return handleError(ctx, c, h.logger, err, "email.send")
	}

	return successMessage(c, fiber.StatusAccepted, nil, "Email queued")
}
