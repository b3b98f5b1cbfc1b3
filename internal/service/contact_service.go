package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.uber.org/zap"
)

type ContactService interface {
	Create(ctx context.Context, input *domain.CreateContactInput) (*domain.ContactMessage, error)
	List(ctx context.Context, status *domain.ContactStatus) ([]domain.ContactMessage, error)
	UpdateStatus(ctx context.Context, id int64, input *domain.UpdateContactInput) (*domain.ContactMessage, error)
	Delete(ctx context.Context, id int64) error
}

type contactService struct {
	pool       *pgxpool.Pool
	repo       repository.ContactRepository
	outboxRepo worker.OutboxRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewContactService(
	pool *pgxpool.Pool,
	repo repository.ContactRepository,
	outboxRepo worker.OutboxRepository,
	validator *validator.Validate,
	logger *zap.Logger,
) ContactService {
	return &contactService{
		pool:       pool,
		repo:       repo,
		outboxRepo: outboxRepo,
		validator:  validator,
		logger:     logger,
	}
}

// Create stores the message and queues the contact-response email in the
// same transaction.
func (s *contactService) Create(ctx context.Context, input *domain.CreateContactInput) (*domain.ContactMessage, error) {
	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	msg := &domain.ContactMessage{
		Name:    strings.TrimSpace(input.Name),
		Email:   strings.TrimSpace(input.Email),
		Phone:   strings.TrimSpace(input.Phone),
		Subject: strings.TrimSpace(input.Subject),
		Message: input.Message,
	}

	err := inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.repo.Create(ctx, tx, msg); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicNotificationEvents,
			aggregateType: domain.AggregateContact,
			aggregateID:   strconv.FormatInt(msg.ID, 10),
			eventType:     domain.EventContactReceived,
			payload: domain.ContactReceivedEvent{
				ContactID: msg.ID,
				Name:      msg.Name,
				Email:     msg.Email,
				Subject:   msg.Subject,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Contact message received", zap.Int64("contact_id", msg.ID))

	return msg, nil
}

func (s *contactService) List(ctx context.Context, status *domain.ContactStatus) ([]domain.ContactMessage, error) {
	if status != nil && !status.Valid() {
		return nil, NewValidationError("status", "status must be one of [new read replied archived]")
	}

	return s.repo.List(ctx, status)
}

func (s *contactService) UpdateStatus(ctx context.Context, id int64, input *domain.UpdateContactInput) (*domain.ContactMessage, error) {
	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	return s.repo.UpdateStatus(ctx, id, input.Status)
}

func (s *contactService) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteByID(ctx, id)
}
