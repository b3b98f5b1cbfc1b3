package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, input *domain.UpdateOrderStatusInput) (*domain.Order, error)
}

type orderService struct {
	pool       *pgxpool.Pool
	orderRepo  repository.OrderRepository
	cartRepo   repository.CartRepository
	outboxRepo worker.OutboxRepository
	pricing    domain.PricingRules
	validator  *validator.Validate
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewOrderService(
	pool *pgxpool.Pool,
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	outboxRepo worker.OutboxRepository,
	pricing domain.PricingRules,
	validator *validator.Validate,
	m *metrics.Metrics,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		pool:       pool,
		orderRepo:  orderRepo,
		cartRepo:   cartRepo,
		outboxRepo: outboxRepo,
		pricing:    pricing,
		validator:  validator,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("service/order_service"),
		now:        time.Now,
	}
}

// CreateOrder persists the header, every item, the optional cart clear and
// the OrderCreated outbox event in one transaction. Line totals and order
// totals are recomputed server-side; a client discount is never trusted.
// With a cart id the lines come from the caller's cart snapshot, priced at
// price_at_time, and a cart the caller does not own is ErrCartNotFound.
// Repeating a request with the same idempotency key returns the first order.
func (s *orderService) CreateOrder(ctx context.Context, input *domain.CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int("items_count", len(input.Items)),
		attribute.Bool("idempotent", input.IdempotencyKey != ""),
		attribute.Bool("from_cart", input.CartID != nil),
	)

	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.orderRepo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			mylogger.Info(
				ctx,
				s.logger,
				"Replaying order for idempotency key",
				zap.String("order_number", existing.OrderNumber),
			)

			return existing, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			span.RecordError(err)
			return nil, err
		}
	}

	var order *domain.Order

	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		lines := s.inputLines(ctx, input.Items)

		if input.CartID != nil {
			access := cartAccess(input)

			cartItems, err := s.cartRepo.LockItems(ctx, tx, *input.CartID, access)
			if err != nil {
				return err
			}
			if len(cartItems) == 0 {
				return ErrEmptyCart
			}

			lines = s.cartLines(ctx, cartItems, lines)

			if err := s.cartRepo.Clear(ctx, tx, *input.CartID, access); err != nil {
				return err
			}
		}

		order = s.buildOrder(input, lines)

		seq, err := s.orderRepo.NextOrderSeq(ctx, tx)
		if err != nil {
			return err
		}
		order.OrderNumber = domain.FormatOrderNumber(s.now(), seq)

		if err := s.orderRepo.Create(ctx, tx, order, input.IdempotencyKey); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicOrderEvents,
			aggregateType: domain.AggregateOrder,
			aggregateID:   strconv.FormatInt(order.ID, 10),
			eventType:     domain.EventOrderCreated,
			payload:       domain.NewOrderCreatedEvent(order),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return s.orderRepo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("customer_email", input.CustomerEmail),
			zap.Error(err),
		)

		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total_amount", order.TotalAmount.String()),
	)

	created, err := s.orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to reload order: %w", err)
	}

	return created, nil
}

func cartAccess(input *domain.CreateOrderInput) domain.CartAccess {
	var sessionID string
	if input.SessionID != nil {
		sessionID = *input.SessionID
	}

	return domain.NewCartAccess(input.UserID, sessionID)
}

// inputLines prices the client's lines. Used as-is only for orders placed
// without a cart.
func (s *orderService) inputLines(ctx context.Context, in []domain.OrderItemInput) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(in))
	for _, line := range in {
		item := domain.OrderItem{
			ProductID:   line.ProductID,
			ProductName: strings.TrimSpace(line.ProductName),
			ProductSKU:  line.ProductSKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		}
		item.Recalculate()

		if !line.TotalPrice.IsZero() && !line.TotalPrice.Equal(item.TotalPrice) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Client line total corrected",
				zap.String("product_name", item.ProductName),
				zap.String("client_total", line.TotalPrice.String()),
				zap.String("total", item.TotalPrice.String()),
			)
		}

		items = append(items, item)
	}

	return items
}

// cartLines turns the locked cart snapshot into order lines. Client lines
// only serve to log drift between what the shopper saw and the cart.
func (s *orderService) cartLines(ctx context.Context, cartItems []domain.CartItem, client []domain.OrderItem) []domain.OrderItem {
	sent := make(map[int64]domain.OrderItem, len(client))
	for _, line := range client {
		if line.ProductID != nil {
			sent[*line.ProductID] = line
		}
	}

	items := make([]domain.OrderItem, 0, len(cartItems))
	for _, ci := range cartItems {
		productID := ci.ProductID
		item := domain.OrderItem{
			ProductID:   &productID,
			ProductName: ci.ProductName,
			ProductSKU:  ci.ProductSKU,
			Quantity:    ci.Quantity,
			UnitPrice:   ci.PriceAtTime,
		}
		item.Recalculate()

		if line, ok := sent[productID]; !ok || line.Quantity != item.Quantity || !line.UnitPrice.Equal(item.UnitPrice) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Client lines differ from cart",
				zap.Int64("cart_id", ci.CartID),
				zap.Int64("product_id", productID),
			)
		}

		items = append(items, item)
	}

	if len(sent) > len(items) {
		mylogger.Warn(ctx, s.logger, "Client sent lines missing from cart", zap.Int("client_lines", len(client)), zap.Int("cart_lines", len(items)))
	}

	return items
}

func (s *orderService) buildOrder(input *domain.CreateOrderInput, items []domain.OrderItem) *domain.Order {
	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.PaymentMethodCOD
	}

	order := &domain.Order{
		UserID:          input.UserID,
		SessionID:       input.SessionID,
		Status:          domain.OrderStatusPending,
		PromoCode:       strings.ToUpper(strings.TrimSpace(input.PromoCode)),
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		CustomerPhone:   strings.TrimSpace(input.CustomerPhone),
		BillingAddress:  input.BillingAddress,
		DeliveryAddress: input.DeliveryAddress,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           input.Notes,
		Items:           items,
	}

	totals := s.pricing.CalculateTotals(order.ItemsSubtotal(), order.PromoCode)
	if totals.Discount.IsZero() {
		order.PromoCode = ""
	}
	order.ApplyTotals(totals)

	return order
}

func (s *orderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.orderRepo.FindByNumber(ctx, orderNumber)
}

func (s *orderService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, NewValidationError("status", "status is invalid")
	}

	return s.orderRepo.List(ctx, filter)
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, id int64, input *domain.UpdateOrderStatusInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	if input.Status == nil && input.PaymentStatus == nil {
		return nil, ErrNothingToUpdate
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.Valid() {
		return nil, NewValidationError("payment_status", "payment_status is invalid")
	}

	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		previous := order.Status

		if input.Status != nil {
			if err := order.ApplyStatus(*input.Status, s.now()); err != nil {
				return err
			}
		}
		if input.PaymentStatus != nil {
			order.PaymentStatus = *input.PaymentStatus
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, order); err != nil {
			return err
		}

		if order.Status == previous {
			return nil
		}

		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicOrderEvents,
			aggregateType: domain.AggregateOrder,
			aggregateID:   strconv.FormatInt(order.ID, 10),
			eventType:     domain.EventOrderStatusUpdated,
			payload: domain.OrderStatusUpdatedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				CustomerName:   order.CustomerName,
				CustomerEmail:  order.CustomerEmail,
				PreviousStatus: previous,
				Status:         order.Status,
			},
		})
	})
	if err != nil {
		span.RecordError(err)

		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, repository.ErrOrderNotFound) {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to update order status",
				zap.Int64("order_id", id),
				zap.Error(err),
			)
		}

		return nil, err
	}

	return s.orderRepo.FindByID(ctx, id)
}
