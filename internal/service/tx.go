package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/ravolux/pkg/outbox/domain"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.uber.org/zap"
)

// inTx runs fn inside a transaction and commits when it returns nil.
// Rollback runs on a context detached from cancellation.
func inTx(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				shutdownCtx,
				logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type pendingEvent struct {
	topic         string
	aggregateType string
	aggregateID   string
	eventType     string
	payload       any
}

func emitEvent(ctx context.Context, tx pgx.Tx, repo worker.OutboxRepository, logger *zap.Logger, ev pendingEvent) error {
	event, err := outboxDomain.NewEvent(ev.topic, ev.aggregateType, ev.aggregateID, ev.eventType, ev.payload)
	if err != nil {
		mylogger.Error(
			ctx,
			logger,
			"Failed to build outbox event",
			zap.String("event_type", ev.eventType),
			zap.Error(err),
		)

		return err
	}

	if err := repo.SaveOutboxEvent(ctx, tx, event); err != nil {
		mylogger.Error(
			ctx,
			logger,
			"Failed to save outbox event",
			zap.String("event_type", ev.eventType),
			zap.Error(err),
		)

		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}
