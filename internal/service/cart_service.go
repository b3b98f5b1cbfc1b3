package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartService interface {
	GetOrCreateCart(ctx context.Context, owner domain.Owner) (int64, error)
	// Carts and lines the access does not own are reported as not found.
	GetCart(ctx context.Context, cartID int64, access domain.CartAccess) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID int64, access domain.CartAccess, input *domain.AddCartItemInput) (*domain.CartItem, error)
	// UpdateItem with quantity <= 0 removes the line and returns a nil item.
	UpdateItem(ctx context.Context, itemID int64, access domain.CartAccess, quantity int32) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, itemID int64, access domain.CartAccess) error
	MergeAnonymousCart(ctx context.Context, sessionID string, userID int64) (int64, error)
}

type cartService struct {
	pool      *pgxpool.Pool
	cartRepo  repository.CartRepository
	validator *validator.Validate
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewCartService(
	pool *pgxpool.Pool,
	cartRepo repository.CartRepository,
	validator *validator.Validate,
	m *metrics.Metrics,
	logger *zap.Logger,
) CartService {
	return &cartService{
		pool:      pool,
		cartRepo:  cartRepo,
		validator: validator,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("service/cart_service"),
	}
}

func (s *cartService) count(operation string) {
	if s.metrics != nil {
		s.metrics.CartOperations.WithLabelValues(operation).Inc()
	}
}

func (s *cartService) GetOrCreateCart(ctx context.Context, owner domain.Owner) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.GetOrCreateCart")
	defer span.End()

	if owner.IsZero() {
		return 0, domain.ErrOwnerRequired
	}

	cartID, err := s.cartRepo.GetOrCreate(ctx, owner)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	return cartID, nil
}

func (s *cartService) GetCart(ctx context.Context, cartID int64, access domain.CartAccess) (*domain.Cart, error) {
	return s.cartRepo.FindByID(ctx, cartID, access)
}

func (s *cartService) AddItem(ctx context.Context, cartID int64, access domain.CartAccess, input *domain.AddCartItemInput) (*domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cart_id", cartID),
		attribute.Int64("product_id", input.ProductID),
	)

	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	if err := s.cartRepo.CheckAccess(ctx, cartID, access); err != nil {
		return nil, err
	}

	item, err := s.cartRepo.AddItem(ctx, cartID, input.ProductID, input.Quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if input.PriceAtTime != nil && !input.PriceAtTime.Equal(item.PriceAtTime) {
		mylogger.Warn(
			ctx,
			s.logger,
			"Client price differs from stored snapshot",
			zap.Int64("cart_id", cartID),
			zap.Int64("product_id", input.ProductID),
			zap.String("client_price", input.PriceAtTime.String()),
			zap.String("snapshot_price", item.PriceAtTime.String()),
		)
	}

	s.count("add")

	return item, nil
}

func (s *cartService) UpdateItem(ctx context.Context, itemID int64, access domain.CartAccess, quantity int32) (*domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.UpdateItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("item_id", itemID),
		attribute.Int("quantity", int(quantity)),
	)

	if quantity <= 0 {
		if err := s.RemoveItem(ctx, itemID, access); err != nil {
			return nil, err
		}
		return nil, nil
	}

	item, err := s.cartRepo.UpdateItemQuantity(ctx, itemID, access, quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.count("update")

	return item, nil
}

func (s *cartService) RemoveItem(ctx context.Context, itemID int64, access domain.CartAccess) error {
	ctx, span := s.tracer.Start(ctx, "CartService.RemoveItem")
	defer span.End()

	span.SetAttributes(attribute.Int64("item_id", itemID))

	if err := s.cartRepo.RemoveItem(ctx, itemID, access); err != nil {
		span.RecordError(err)
		return err
	}

	s.count("remove")

	return nil
}

// MergeAnonymousCart folds the session's cart into the user's cart and
// returns the user's cart id. A session without a cart is not an error.
func (s *cartService) MergeAnonymousCart(ctx context.Context, sessionID string, userID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.MergeAnonymousCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	owner, err := domain.UserOwner(userID)
	if err != nil {
		return 0, err
	}

	userCartID, err := s.cartRepo.GetOrCreate(ctx, owner)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if sessionID == "" {
		return userCartID, nil
	}

	err = inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		anonCartID, err := s.cartRepo.FindIDBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		return s.cartRepo.Merge(ctx, tx, anonCartID, userCartID)
	})
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to merge anonymous cart",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to merge cart: %w", err)
	}

	s.count("merge")

	return userCartID, nil
}
