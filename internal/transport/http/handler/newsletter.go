package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type NewsletterHandler struct {
	service service.NewsletterService
	timeout time.Duration
	logger  *zap.Logger
}

func NewNewsletterHandler(service service.NewsletterService, timeout time.Duration, logger *zap.Logger) *NewsletterHandler {
	return &NewsletterHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *NewsletterHandler) Subscribe(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.SubscribeInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	sub, err := h.service.Subscribe(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "newsletter.subscribe")
	}

	return successMessage(c, fiber.StatusCreated, sub, "Subscribed to newsletter")
}

func (h *NewsletterHandler) List(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	subs, err := h.service.List(ctx, c.QueryBool("active"))
	if err != nil {
		return handleError(ctx, c, h.logger, err, "newsletter.list")
	}

	return success(c, fiber.StatusOK, subs)
}

func (h *NewsletterHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	// An empty body toggles the subscription.
	input := new(domain.UpdateSubscriptionInput)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(input); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	sub, err := h.service.Update(ctx, id, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "newsletter.update")
	}

	return successMessage(c, fiber.StatusOK, sub, "Subscription updated")
}

func (h *NewsletterHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.service.Delete(ctx, id); err != nil {
		return handleError(ctx, c, h.logger, err, "newsletter.delete")
	}

	return successMessage(c, fiber.StatusOK, nil, "Subscription deleted")
}
