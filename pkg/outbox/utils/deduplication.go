package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var errAlreadyProcessed = errors.New("event already processed")

// ProcessWithDeduplication runs action at most once per eventID. The
// processed_events row and the action share a transaction, so a failed
// action leaves the event eligible for redelivery. Retrying is up to the
// caller.
func ProcessWithDeduplication(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	eventID int64,
	action func(ctx context.Context) error,
) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("outbox.event_id", eventID))

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		claimed, err := claimEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !claimed {
			return errAlreadyProcessed
		}

		if err := action(ctx); err != nil {
			return fmt.Errorf("event %d action: %w", eventID, err)
		}

		return nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errAlreadyProcessed):
		mylogger.Info(ctx, logger, "Event already processed, skipping", zap.Int64("event_id", eventID))
		return nil
	default:
		span.RecordError(err)
		mylogger.Error(ctx, logger, "Deduplicated processing failed", zap.Int64("event_id", eventID), zap.Error(err))
		return err
	}
}

// claimEvent reports false when another delivery already recorded eventID.
func claimEvent(ctx context.Context, tx pgx.Tx, eventID int64) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := tx.Exec(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("record processed event %d: %w", eventID, err)
	}

	return tag.RowsAffected() == 1, nil
}
