package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartRepository interface {
	GetOrCreate(ctx context.Context, owner domain.Owner) (int64, error)
	FindByID(ctx context.Context, cartID int64, access domain.CartAccess) (*domain.Cart, error)
	CheckAccess(ctx context.Context, cartID int64, access domain.CartAccess) error
	FindIDBySession(ctx context.Context, tx pgx.Tx, sessionID string) (int64, error)
	AddItem(ctx context.Context, cartID, productID int64, quantity int32) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, access domain.CartAccess, quantity int32) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, itemID int64, access domain.CartAccess) error
	LockItems(ctx context.Context, tx pgx.Tx, cartID int64, access domain.CartAccess) ([]domain.CartItem, error)
	Clear(ctx context.Context, tx pgx.Tx, cartID int64, access domain.CartAccess) error
	Merge(ctx context.Context, tx pgx.Tx, fromCartID, toCartID int64) error
}

type cartRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCartRepository(pool *pgxpool.Pool, logger *zap.Logger) CartRepository {
	return &cartRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/cart_repository"),
	}
}

const cartItemColumns = `
	ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price_at_time, ci.created_at,
	p.name, p.sku, p.image_url, p.stock_quantity`

// Lines of deleted or deactivated products are neither shown nor ordered.
const activeCartItems = `
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id AND p.deleted_at IS NULL AND p.is_active
	WHERE ci.cart_id = $1
	ORDER BY ci.created_at, ci.id`

// ownedCart matches carts alias c against the (user_id, session_id) pair
// bound at $2 and $3. NULL credentials never match.
const ownedCart = `(c.user_id = $2 OR c.session_id = $3)`

func collectCartItems(rows pgx.Rows) ([]domain.CartItem, error) {
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart items rows error: %w", err)
	}

	return items, nil
}

func scanCartItem(row pgx.Row) (*domain.CartItem, error) {
	var item domain.CartItem
	if err := row.Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.PriceAtTime,
		&item.CreatedAt,
		&item.ProductName,
		&item.ProductSKU,
		&item.ImageURL,
		&item.Stock,
	); err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *cartRepo) GetOrCreate(ctx context.Context, owner domain.Owner) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.GetOrCreate")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner", owner.String()),
	)

	userID, sessionID := owner.Columns()

	var cartID int64
	if err := r.pool.QueryRow(ctx, `SELECT get_or_create_cart($1, $2)`, userID, sessionID).Scan(&cartID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get or create cart",
			zap.String("owner", owner.String()),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to get or create cart: %w", err)
	}

	return cartID, nil
}

// FindByID loads a cart the caller owns. Carts of other owners are
// reported as ErrCartNotFound.
func (r *cartRepo) FindByID(ctx context.Context, cartID int64, access domain.CartAccess) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cart_id", cartID),
	)

	query := `
		SELECT c.id, c.user_id, c.session_id, c.created_at, c.updated_at
		FROM carts c
		WHERE c.id = $1 AND ` + ownedCart + `;
	`

	var (
		cart      domain.Cart
		userID    *int64
		sessionID *string
	)
	if err := r.pool.QueryRow(ctx, query, cartID, access.UserID, access.SessionID).Scan(
		&cart.ID,
		&userID,
		&sessionID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query cart",
			zap.Int64("cart_id", cartID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	owner, err := domain.ParseOwner(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("cart %d has no owner: %w", cartID, err)
	}
	cart.Owner = owner

	rows, err := r.pool.Query(ctx, `SELECT`+cartItemColumns+activeCartItems, cartID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query cart items",
			zap.Int64("cart_id", cartID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}

	cart.Items, err = collectCartItems(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("items_count", len(cart.Items)))

	return &cart, nil
}

func (r *cartRepo) CheckAccess(ctx context.Context, cartID int64, access domain.CartAccess) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.CheckAccess")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	query := `SELECT EXISTS (SELECT 1 FROM carts c WHERE c.id = $1 AND ` + ownedCart + `)`

	var owned bool
	if err := r.pool.QueryRow(ctx, query, cartID, access.UserID, access.SessionID).Scan(&owned); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check cart access: %w", err)
	}
	if !owned {
		return ErrCartNotFound
	}

	return nil
}

func (r *cartRepo) FindIDBySession(ctx context.Context, tx pgx.Tx, sessionID string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.FindIDBySession")
	defer span.End()

	query := `
		SELECT id
		FROM carts
		WHERE session_id = $1
		FOR UPDATE;
	`

	var cartID int64
	if err := tx.QueryRow(ctx, query, sessionID).Scan(&cartID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCartNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to find cart by session",
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to find cart by session: %w", err)
	}

	return cartID, nil
}

// AddItem inserts a line with the product's current price as its snapshot.
// Adding a product already in the cart sums the quantities and keeps the
// original snapshot.
func (r *cartRepo) AddItem(ctx context.Context, cartID, productID int64, quantity int32) (*domain.CartItem, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cart_id", cartID),
		attribute.Int64("product_id", productID),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		WITH upserted AS (
			INSERT INTO cart_items (cart_id, product_id, quantity, price_at_time)
			SELECT $1, p.id, $3, p.price
			FROM products p
			WHERE p.id = $2 AND p.deleted_at IS NULL AND p.is_active
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING id, cart_id, product_id, quantity, price_at_time, created_at
		), touched AS (
			UPDATE carts SET updated_at = NOW()
			WHERE id = (SELECT cart_id FROM upserted)
		)
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price_at_time, ci.created_at,
			p.name, p.sku, p.image_url, p.stock_quantity
		FROM upserted ci
		JOIN products p ON p.id = ci.product_id;
	`

	item, err := scanCartItem(r.pool.QueryRow(ctx, query, cartID, productID, quantity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if isPgError(err, pgForeignKeyViolation) {
			return nil, ErrCartNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to add cart item",
			zap.Int64("cart_id", cartID),
			zap.Int64("product_id", productID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return item, nil
}

// UpdateItemQuantity only touches lines of carts the caller owns; other lines
// are reported as ErrCartItemNotFound.
func (r *cartRepo) UpdateItemQuantity(ctx context.Context, itemID int64, access domain.CartAccess, quantity int32) (*domain.CartItem, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.UpdateItemQuantity")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("item_id", itemID),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		WITH updated AS (
			UPDATE cart_items ci
			SET quantity = $4
			FROM carts c
			WHERE ci.id = $1 AND c.id = ci.cart_id AND ` + ownedCart + `
			RETURNING ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price_at_time, ci.created_at
		)
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price_at_time, ci.created_at,
			p.name, p.sku, p.image_url, p.stock_quantity
		FROM updated ci
		JOIN products p ON p.id = ci.product_id;
	`

	item, err := scanCartItem(r.pool.QueryRow(ctx, query, itemID, access.UserID, access.SessionID, quantity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update cart item",
			zap.Int64("item_id", itemID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	return item, nil
}

func (r *cartRepo) RemoveItem(ctx context.Context, itemID int64, access domain.CartAccess) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.RemoveItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("item_id", itemID),
	)

	query := `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $1 AND c.id = ci.cart_id AND ` + ownedCart + `
	`

	commandTag, err := r.pool.Exec(ctx, query, itemID, access.UserID, access.SessionID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete cart item",
			zap.Int64("item_id", itemID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

// LockItems locks a cart the caller owns for the rest of tx and returns its
// orderable lines.
func (r *cartRepo) LockItems(ctx context.Context, tx pgx.Tx, cartID int64, access domain.CartAccess) ([]domain.CartItem, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.LockItems")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	lockQuery := `
		SELECT c.id
		FROM carts c
		WHERE c.id = $1 AND ` + ownedCart + `
		FOR UPDATE;
	`

	var id int64
	if err := tx.QueryRow(ctx, lockQuery, cartID, access.UserID, access.SessionID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT`+cartItemColumns+activeCartItems, cartID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}

	items, err := collectCartItems(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("items_count", len(items)))

	return items, nil
}

// Clear empties a cart the caller owns. A cart of another owner is left
// untouched and reported as ErrCartNotFound.
func (r *cartRepo) Clear(ctx context.Context, tx pgx.Tx, cartID int64, access domain.CartAccess) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Clear")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cart_id", cartID),
	)

	query := `
		WITH owned AS (
			SELECT c.id FROM carts c WHERE c.id = $1 AND ` + ownedCart + `
		), cleared AS (
			DELETE FROM cart_items ci
			USING owned
			WHERE ci.cart_id = owned.id
		)
		SELECT EXISTS (SELECT 1 FROM owned);
	`

	var owned bool
	if err := tx.QueryRow(ctx, query, cartID, access.UserID, access.SessionID).Scan(&owned); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to clear cart",
			zap.Int64("cart_id", cartID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to clear cart: %w", err)
	}

	if !owned {
		return ErrCartNotFound
	}

	return nil
}

// Merge moves every line of fromCartID into toCartID and deletes the source
// cart. Lines for a product already in the target sum their quantities and
// keep the target's price snapshot.
func (r *cartRepo) Merge(ctx context.Context, tx pgx.Tx, fromCartID, toCartID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Merge")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("from_cart_id", fromCartID),
		attribute.Int64("to_cart_id", toCartID),
	)

	if fromCartID == toCartID {
		return nil
	}

	mergeQuery := `
		INSERT INTO cart_items (cart_id, product_id, quantity, price_at_time, created_at)
		SELECT $2, product_id, quantity, price_at_time, created_at
		FROM cart_items
		WHERE cart_id = $1
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity;
	`

	if _, err := tx.Exec(ctx, mergeQuery, fromCartID, toCartID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to merge cart items",
			zap.Int64("from_cart_id", fromCartID),
			zap.Int64("to_cart_id", toCartID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to merge cart items: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, fromCartID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete merged cart",
			zap.Int64("cart_id", fromCartID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to delete merged cart: %w", err)
	}

	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, toCartID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to touch cart: %w", err)
	}

	return nil
}
