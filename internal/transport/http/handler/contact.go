package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type ContactHandler struct {
	service service.ContactService
	timeout time.Duration
	logger  *zap.Logger
}

func NewContactHandler(service service.ContactService, timeout time.Duration, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *ContactHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.CreateContactInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	msg, err := h.service.Create(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "contact.create")
	}

	return successMessage(c, fiber.StatusCreated, msg, "Message received")
}

func (h *ContactHandler) List(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	var status *domain.ContactStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.ContactStatus(raw)
		if !s.Valid() {
			return badRequest(c, "status is invalid")
		}
		status = &s
	}

	messages, err := h.service.List(ctx, status)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "contact.list")
	}

	return success(c, fiber.StatusOK, messages)
}

func (h *ContactHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	input := new(domain.UpdateContactInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.service.UpdateStatus(ctx, id, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "contact.update_status")
	}

	return successMessage(c, fiber.StatusOK, msg, "Message updated")
}

func (h *ContactHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.service.Delete(ctx, id); err != nil {
		return handleError(ctx, c, h.logger, err, "contact.delete")
	}

	return successMessage(c, fiber.StatusOK, nil, "Message deleted")
}
