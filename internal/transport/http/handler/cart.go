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

type CartHandler struct {
	service service.CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(service service.CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

// HeaderSessionID carries the anonymous session id that owns a cart.
const HeaderSessionID = "X-Session-ID"

// cartAccess collects what the caller can prove: the verified user id and
// the session header. It reports false when there is neither.
func cartAccess(c *fiber.Ctx) (domain.CartAccess, bool) {
	var userID *int64
	if id, ok := middleware.UserID(c); ok {
		userID = &id
	}

	access := domain.NewCartAccess(userID, c.Get(HeaderSessionID))

	return access, !access.IsZero()
}

func cartCredentialsRequired(c *fiber.Ctx) error {
	return fail(c, fiber.StatusUnauthorized, "unauthorized", "Login or "+HeaderSessionID+" header required")
}

type cartOwnerRequest struct {
	UserID    *int64  `json:"user_id"`
	SessionID *string `json:"session_id"`
}

// GetOrCreate resolves the cart of a user or an anonymous session. A
// user-owned cart can only be requested with that user's token.
func (h *CartHandler) GetOrCreate(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	req := new(cartOwnerRequest)
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	if req.UserID != nil {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "unauthorized", "Login required for a user cart")
		}
		if userID != *req.UserID && !middleware.IsAdmin(c) {
			return fail(c, fiber.StatusForbidden, "forbidden", "Cart belongs to another user")
		}
	}

	owner, err := domain.ParseOwner(req.UserID, req.SessionID)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "cart.get_or_create")
	}

	cartID, err := h.service.GetOrCreateCart(ctx, owner)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "cart.get_or_create")
	}

	return success(c, fiber.StatusOK, fiber.Map{"cart_id": cartID})
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	access, ok := cartAccess(c)
	if !ok {
		return cartCredentialsRequired(c)
	}

	cart, err := h.service.GetCart(ctx, id, access)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "cart.get")
	}

	return success(c, fiber.StatusOK, cart)
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	cartID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	input := new(domain.AddCartItemInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	access, ok := cartAccess(c)
	if !ok {
		return cartCredentialsRequired(c)
	}

	item, err := h.service.AddItem(ctx, cartID, access, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "cart.add_item")
	}

	return successMessage(c, fiber.StatusCreated, item, "Item added to cart")
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	itemID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	input := new(domain.UpdateCartItemInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	access, ok := cartAccess(c)
	if !ok {
		return cartCredentialsRequired(c)
	}

	item, err := h.service.UpdateItem(ctx, itemID, access, input.Quantity)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "cart.update_item")
	}
	if item == nil {
		return successMessage(c, fiber.StatusOK, nil, "Item removed from cart")
	}

	return successMessage(c, fiber.StatusOK, item, "Cart updated")
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	itemID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	access, ok := cartAccess(c)
	if !ok {
		return cartCredentialsRequired(c)
	}

	if err := h.service.RemoveItem(ctx, itemID, access); err != nil {
		return handleError(ctx, c, h.logger, err, "cart.remove_item")
	}

	return successMessage(c, fiber.StatusOK, nil, "Item removed from cart")
}
