package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	NextOrderSeq(ctx context.Context, tx pgx.Tx) (int64, error)
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order, idempotencyKey string) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	FindForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repository"),
	}
}

const orderColumns = `
	id, order_number, user_id, session_id, status, subtotal, shipping_cost, discount,
	total_amount, promo_code, customer_name, customer_email, customer_phone,
	billing_address, delivery_address, payment_method, payment_status, notes,
	created_at, updated_at, shipped_at, delivered_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	if err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.SessionID,
		&o.Status,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Discount,
		&o.TotalAmount,
		&o.PromoCode,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.CustomerPhone,
		&o.BillingAddress,
		&o.DeliveryAddress,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
	); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *orderRepo) NextOrderSeq(ctx context.Context, tx pgx.Tx) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.NextOrderSeq")
	defer span.End()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to allocate order number",
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to allocate order number: %w", err)
	}

	return seq, nil
}

// Create inserts the header and every item inside tx. The caller owns the
// transaction so a failed item insert leaves no header behind.
func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order, idempotencyKey string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_number", order.OrderNumber),
		attribute.Int("items_count", len(order.Items)),
	)

	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	queryOrder := `
		INSERT INTO orders (
			order_number, idempotency_key, user_id, session_id, status,
			subtotal, shipping_cost, discount, total_amount, promo_code,
			customer_name, customer_email, customer_phone,
			billing_address, delivery_address, payment_method, payment_status, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at;
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.OrderNumber,
		key,
		order.UserID,
		order.SessionID,
		string(order.Status),
		order.Subtotal,
		order.ShippingCost,
		order.Discount,
		order.TotalAmount,
		order.PromoCode,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.BillingAddress,
		order.DeliveryAddress,
		order.PaymentMethod,
		string(order.PaymentStatus),
		order.Notes,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if isPgError(err, pgUniqueViolation) && constraintOf(err) == "orders_idempotency_key_key" {
			return ErrDuplicateOrder
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, product_name, product_sku, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.ProductID,
			item.ProductName,
			item.ProductSKU,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.Int64("order_id", order.ID),
				zap.String("product_name", item.ProductName),
				zap.Error(err),
			)

			if isPgError(err, pgForeignKeyViolation) {
				return fmt.Errorf("order item references %w", ErrProductNotFound)
			}

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	return r.findOne(ctx, span, "id = $1", id)
}

func (r *orderRepo) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindByNumber")
	defer span.End()

	span.SetAttributes(attribute.String("order_number", orderNumber))

	return r.findOne(ctx, span, "order_number = $1", orderNumber)
}

func (r *orderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindByIdempotencyKey")
	defer span.End()

	return r.findOne(ctx, span, "idempotency_key = $1", key)
}

func (r *orderRepo) findOne(ctx context.Context, span trace.Span, where string, arg any) (*domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE ` + where

	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.String("where", where),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.itemsOf(ctx, []int64{order.ID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	return order, nil
}

func (r *orderRepo) FindForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	return order, nil
}

func (r *orderRepo) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)

	var (
		conditions []string
		args       []interface{}
	)
	argID := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argID))
		args = append(args, *filter.UserID)
		argID++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, string(*filter.Status))
		argID++
	}

	query := `SELECT` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list orders",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan order",
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orders rows error: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, nil
}

func (r *orderRepo) itemsOf(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, product_sku, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductSKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
		); err != nil {
			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan order item",
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result[item.OrderID] = append(result[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Rows error",
			zap.Error(err),
		)

		return nil, fmt.Errorf("order items rows error: %w", err)
	}

	return result, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
		attribute.String("payment_status", string(order.PaymentStatus)),
	)

	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, shipped_at = $4, delivered_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at;
	`

	if err := tx.QueryRow(
		ctx,
		query,
		order.ID,
		string(order.Status),
		string(order.PaymentStatus),
		order.ShippedAt,
		order.DeliveredAt,
	).Scan(&order.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Order not found",
				zap.Int64("order_id", order.ID),
			)

			return ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	return nil
}
