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

type ProductHandler struct {
	service service.ProductService
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(service service.ProductService, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return badRequest(c, err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter := domain.ProductFilter{
		Category:        c.Query("category"),
		Search:          c.Query("search"),
		IncludeInactive: middleware.IsAdmin(c) && c.QueryBool("include_inactive"),
		Limit:           limit,
		Offset:          offset,
	}

	products, total, err := h.service.List(ctx, filter)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "product.list")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    products,
		"total":   total,
	})
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	product, err := h.service.FindByID(ctx, id)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "product.get")
	}

	return success(c, fiber.StatusOK, product)
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	input := new(domain.CreateProductInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))
		return badRequest(c, "invalid request body")
	}

	product, err := h.service.Create(ctx, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "product.create")
	}

	return successMessage(c, fiber.StatusCreated, product, "Product created")
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	input := new(domain.UpdateProductInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, "invalid request body")
	}

	product, err := h.service.Update(ctx, id, input)
	if err != nil {
		return handleError(ctx, c, h.logger, err, "product.update")
	}

	return successMessage(c, fiber.StatusOK, product, "Product updated")
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, h.timeout)
	defer cancel()

	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.service.Delete(ctx, id); err != nil {
		return handleError(ctx, c, h.logger, err, "product.delete")
	}

	mylogger.Info(ctx, h.logger, "product deleted", zap.Int64("product_id", id))

	return successMessage(c, fiber.StatusOK, nil, "Product deleted")
}
