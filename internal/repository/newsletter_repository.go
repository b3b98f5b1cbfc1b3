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

type NewsletterRepository interface {
	Subscribe(ctx context.Context, email string) (*domain.NewsletterSubscription, error)
	List(ctx context.Context, activeOnly bool) ([]domain.NewsletterSubscription, error)
	SetActive(ctx context.Context, id int64, active bool) (*domain.NewsletterSubscription, error)
	Toggle(ctx context.Context, id int64) (*domain.NewsletterSubscription, error)
	DeleteByID(ctx context.Context, id int64) error
}

type newsletterRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewNewsletterRepository(pool *pgxpool.Pool, logger *zap.Logger) NewsletterRepository {
	return &newsletterRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/newsletter_repository"),
	}
}

const subscriptionColumns = `id, email, is_active, subscribed_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.NewsletterSubscription, error) {
	var s domain.NewsletterSubscription
	if err := row.Scan(&s.ID, &s.Email, &s.IsActive, &s.SubscribedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Subscribe is idempotent: subscribing an existing address re-activates it.
func (r *newsletterRepo) Subscribe(ctx context.Context, email string) (*domain.NewsletterSubscription, error) {
	ctx, span := r.tracer.Start(ctx, "NewsletterRepository.Subscribe")
	defer span.End()

	query := `
		INSERT INTO newsletter_subscriptions (email)
		VALUES (LOWER($1))
		ON CONFLICT (email)
		DO UPDATE SET is_active = TRUE, updated_at = NOW()
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to subscribe",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error subscribing: %w", err)
	}

	return sub, nil
}

func (r *newsletterRepo) List(ctx context.Context, activeOnly bool) ([]domain.NewsletterSubscription, error) {
	ctx, span := r.tracer.Start(ctx, "NewsletterRepository.List")
	defer span.End()

	span.SetAttributes(attribute.Bool("active_only", activeOnly))

	query := `
		SELECT ` + subscriptionColumns + `
		FROM newsletter_subscriptions
		WHERE ($1 = FALSE OR is_active)
		ORDER BY subscribed_at DESC, id DESC;
	`

	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list subscriptions",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.NewsletterSubscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning subscription: %w", err)
		}
		subs = append(subs, *s)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("subscriptions rows error: %w", err)
	}

	return subs, nil
}

func (r *newsletterRepo) SetActive(ctx context.Context, id int64, active bool) (*domain.NewsletterSubscription, error) {
	ctx, span := r.tracer.Start(ctx, "NewsletterRepository.SetActive")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Bool("active", active),
	)

	query := `
		UPDATE newsletter_subscriptions
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + subscriptionColumns

	return r.updateOne(ctx, span, query, id, active)
}

func (r *newsletterRepo) Toggle(ctx context.Context, id int64) (*domain.NewsletterSubscription, error) {
	ctx, span := r.tracer.Start(ctx, "NewsletterRepository.Toggle")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	query := `
		UPDATE newsletter_subscriptions
		SET is_active = NOT is_active, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + subscriptionColumns

	return r.updateOne(ctx, span, query, id)
}

func (r *newsletterRepo) updateOne(ctx context.Context, span trace.Span, query string, args ...interface{}) (*domain.NewsletterSubscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update subscription",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error updating subscription: %w", err)
	}

	return sub, nil
}

func (r *newsletterRepo) DeleteByID(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "NewsletterRepository.DeleteByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	commandTag, err := r.pool.Exec(ctx, `DELETE FROM newsletter_subscriptions WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete subscription",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting subscription: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}
