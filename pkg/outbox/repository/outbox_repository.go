package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/outbox/domain"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxAttempts is how many publish failures an event tolerates before the
// worker stops picking it up.
const MaxAttempts = 10

type outboxRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOutboxRepository(logger *zap.Logger) worker.OutboxRepository {
	return &outboxRepo{
		tracer: otel.Tracer("repository/outbox_repo"),
		logger: logger,
	}
}

func (r *outboxRepo) SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveOutboxEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_type", event.AggregateType),
		attribute.String("aggregate_id", event.AggregateID),
		attribute.String("event_type", event.EventType),
	)

	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, headers, topic)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Headers,
		event.Topic,
	).Scan(&event.ID, &event.CreatedAt); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to save outbox event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)

		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

func (r *outboxRepo) GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.GetUnpublishedEvents")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", batchSize))

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
			created_at, published_at, attempts, last_error, topic
		FROM outbox
		WHERE published_at IS NULL AND attempts < $2
		ORDER BY created_at ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, batchSize, MaxAttempts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domain.OutboxEvent])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("collect unpublished events: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(events)))

	return events, nil
}

func (r *outboxRepo) MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	return r.mark(ctx, tx, "OutboxRepository.MarkEventPublished", eventID, `
		UPDATE outbox
		SET published_at = NOW(), last_error = NULL
		WHERE id = $1
	`)
}

func (r *outboxRepo) MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error {
	return r.mark(ctx, tx, "OutboxRepository.MarkEventFailed", eventID, `
		UPDATE outbox
		SET last_error = $2, attempts = attempts + 1
		WHERE id = $1
	`, errMsg)
}

func (r *outboxRepo) mark(ctx context.Context, tx pgx.Tx, op string, eventID int64, query string, args ...any) error {
	ctx, span := r.tracer.Start(ctx, op)
	defer span.End()

	span.SetAttributes(attribute.Int64("event_id", eventID))

	if _, err := tx.Exec(ctx, query, append([]any{eventID}, args...)...); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Outbox update failed", zap.String("op", op), zap.Int64("event_id", eventID), zap.Error(err))
		return fmt.Errorf("%s event %d: %w", op, eventID, err)
	}

	return nil
}
