package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/sakashimaa/ravolux/internal/transport/http/middleware"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

type OrderHandler struct {
	service service.OrderService
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrderHandler(service service.OrderService, timeout time.Duration, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.CreateOrderInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	input.IdempotencyKey = strings.TrimSpace(c.Get(HeaderIdempotencyKey))
	if len(input.IdempotencyKey) > maxIdempotencyKeyLen {
		return badRequest(c, "Idempotency-Key is too long")
	}

	if input.SessionID == nil {
		if sid := strings.TrimSpace(c.Get(HeaderSessionID)); sid != "" {
			input.SessionID = &sid
		}
	}

	userID, authenticated := middleware.UserID(c)
	switch {
	case input.UserID == nil && authenticated:
		input.UserID = &userID
	case input.UserID != nil && !authenticated:
		return fail(c, fiber.StatusUnauthorized, "unauthorized", "Login required to order as a user")
	case input.UserID != nil && *input.UserID != userID && !middleware.IsAdmin(c):
		return fail(c, fiber.StatusForbidden, "forbidden", "Cannot order on behalf of another user")
	}

	order, err := h.service.CreateOrder(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "order.create")
	}

	return successMessage(c, fiber.StatusCreated, order, "Order placed successfully")
}

// Get looks an order up by order number, which is public, or by numeric id,
// which only the owner or an admin may read.
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	ref := c.Params("id")

	id, parseErr := strconv.ParseInt(ref, 10, 64)
	if parseErr != nil {
		order, err := h.service.GetOrderByNumber(ctx, ref)
		if err != nil {
			return handleError(ctx, c, h.logger, err, "order.get_by_number")
		}
		return success(c, fiber.StatusOK, order)
	}

	userID, authenticated := middleware.UserID(c)
	if !authenticated && !middleware.IsAdmin(c) {
		return fail(c, fiber.StatusUnauthorized, "unauthorized", "Login required")
	}

	order, err := h.service.GetOrder(ctx, id)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "order.get")
	}

	if !middleware.IsAdmin(c) && (order.UserID == nil || *order.UserID != userID) {
		return fail(c, fiber.StatusNotFound, "not_found", "order not found")
	}

	return success(c, fiber.StatusOK, order)
}

// List returns the caller's own orders; admins may filter by any user.
func (h *OrderHandler) List(c *fiber.Ctx) error {
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

	filter := domain.OrderFilter{Limit: limit, Offset: offset}

	if status := c.Query("status"); status != "" {
		s := domain.OrderStatus(status)
		filter.Status = &s
	}

	if middleware.IsAdmin(c) {
		if raw := c.Query("user_id"); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return badRequest(c, "user_id is invalid")
			}
			filter.UserID = &userID
		}
	} else {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "unauthorized", "Login required")
		}
		filter.UserID = &userID
	}

	orders, err := h.service.ListOrders(ctx, filter)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "order.list")
	}

	return success(c, fiber.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	input := new(domain.UpdateOrderStatusInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.service.UpdateOrderStatus(ctx, id, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "order.update_status")
	}

	mylogger.Info(
		ctx,
		h.logger,
		"order status updated",
		zap.Int64("order_id", id),
		zap.String("status", string(order.Status)),
	)

	return successMessage(c, fiber.StatusOK, order, "Order updated")
}
