package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type NewsletterService interface {
	Subscribe(ctx context.Context, input *domain.SubscribeInput) (*domain.NewsletterSubscription, error)
	List(ctx context.Context, activeOnly bool) ([]domain.NewsletterSubscription, error)
	// Update sets is_active when given, otherwise toggles it.
	Update(ctx context.Context, id int64, input *domain.UpdateSubscriptionInput) (*domain.NewsletterSubscription, error)
	Delete(ctx context.Context, id int64) error
}

type newsletterService struct {
	repo      repository.NewsletterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewNewsletterService(repo repository.NewsletterRepository, validator *validator.Validate, logger *zap.Logger) NewsletterService {
	return &newsletterService{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

func (s *newsletterService) Subscribe(ctx context.Context, input *domain.SubscribeInput) (*domain.NewsletterSubscription, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	sub, err := s.repo.Subscribe(ctx, input.Email)
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Newsletter subscription saved", zap.Int64("subscription_id", sub.ID))

	return sub, nil
}

func (s *newsletterService) List(ctx context.Context, activeOnly bool) ([]domain.NewsletterSubscription, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *newsletterService) Update(ctx context.Context, id int64, input *domain.UpdateSubscriptionInput) (*domain.NewsletterSubscription, error) {
	if input == nil || input.IsActive == nil {
		return s.repo.Toggle(ctx, id)
	}

	return s.repo.SetActive(ctx, id, *input.IsActive)
}

func (s *newsletterService) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteByID(ctx, id)
}
