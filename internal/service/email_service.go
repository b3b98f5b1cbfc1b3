package service

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.uber.org/zap"
)

// EmailService queues template emails; delivery happens in the
// notification consumer.
type EmailService interface {
	Enqueue(ctx context.Context, req *domain.EmailRequest) error
}

type emailService struct {
	pool       *pgxpool.Pool
	outboxRepo worker.OutboxRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewEmailService(pool *pgxpool.Pool, outboxRepo worker.OutboxRepository, validator *validator.Validate, logger *zap.Logger) EmailService {
	return &emailService{
		pool:       pool,
		outboxRepo: outboxRepo,
		validator:  validator,
		logger:     logger,
	}
}

func (s *emailService) Enqueue(ctx context.Context, req *domain.EmailRequest) error {
	if err := validateStruct(s.validator, req); err != nil {
		return err
	}

	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	} else if !json.Valid(data) {
		return NewValidationError("data", "data must be a JSON object")
	}

	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicNotificationEvents,
			aggregateType: domain.AggregateEmail,
			aggregateID:   req.To,
			eventType:     domain.EventEmailRequested,
			payload: domain.EmailRequestedEvent{
				Type: req.Type,
				To:   req.To,
				Data: data,
			},
		})
	})
	if err != nil {
		return err
	}

	mylogger.Info(ctx, s.logger, "Email queued", zap.String("template", string(req.Type)))

	return nil
}
