package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/pkg/token"
	passwordValidator "github.com/sakashimaa/ravolux/internal/pkg/validator"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost    = 12
	resetTokenTTL = time.Hour
)

type AuthService interface {
	Register(ctx context.Context, input *domain.RegisterInput) (*domain.AuthResult, error)
	Login(ctx context.Context, input *domain.LoginInput) (*domain.AuthResult, error)
	Me(ctx context.Context, userID int64) (*domain.User, error)
	ValidateToken(ctx context.Context, accessToken string) (*token.Claims, error)
	AuthenticateAdmin(ctx context.Context, email, password string) (*domain.User, error)
	ForgotPassword(ctx context.Context, input *domain.ForgotPasswordInput) error
	ResetPassword(ctx context.Context, input *domain.ResetPasswordInput) error
	ListCustomers(ctx context.Context, limit, offset int) ([]domain.User, error)
	DeleteCustomer(ctx context.Context, id int64) error
}

// CartMerger folds an anonymous session cart into a user's cart.
type CartMerger interface {
	MergeAnonymousCart(ctx context.Context, sessionID string, userID int64) (int64, error)
}

type AdminCredentials struct {
	Email        string
	PasswordHash string
}

type authService struct {
	pool       *pgxpool.Pool
	userRepo   repository.UserRepository
	outboxRepo worker.OutboxRepository
	carts      CartMerger
	tokens     *token.Manager
	passwords  passwordValidator.Validator
	validator  *validator.Validate
	admin      AdminCredentials
	baseURL    string
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewAuthService(
	pool *pgxpool.Pool,
	userRepo repository.UserRepository,
	outboxRepo worker.OutboxRepository,
	carts CartMerger,
	tokens *token.Manager,
	validator *validator.Validate,
	admin AdminCredentials,
	baseURL string,
	logger *zap.Logger,
) AuthService {
	return &authService{
		pool:       pool,
		userRepo:   userRepo,
		outboxRepo: outboxRepo,
		carts:      carts,
		tokens:     tokens,
		passwords:  passwordValidator.NewValidator(),
		validator:  validator,
		admin:      admin,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		tracer:     otel.Tracer("service/auth_service"),
	}
}

func (s *authService) Register(ctx context.Context, input *domain.RegisterInput) (*domain.AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}
	if err := s.passwords.ValidatePassword(input.Password); err != nil {
		return nil, NewValidationError("password", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Error hashing password",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &domain.User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         domain.RoleCustomer,
	}

	err = inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicUserEvents,
			aggregateType: domain.AggregateUser,
			aggregateID:   strconv.FormatInt(user.ID, 10),
			eventType:     domain.EventUserRegistered,
			payload: domain.UserRegisteredEvent{
				UserID:    user.ID,
				Email:     user.Email,
				FirstName: user.FirstName,
			},
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("user_id", user.ID))

	mylogger.Info(
		ctx,
		s.logger,
		"User registered",
		zap.Int64("user_id", user.ID),
	)

	return s.issue(ctx, user, input.SessionID)
}

func (s *authService) Login(ctx context.Context, input *domain.LoginInput) (*domain.AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}

		span.RecordError(err)
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Invalid password",
			zap.Int64("user_id", user.ID),
		)

		return nil, ErrInvalidCredentials
	}

	span.SetAttributes(attribute.Int64("user_id", user.ID))

	return s.issue(ctx, user, input.SessionID)
}

// issue signs an access token and, when the caller brought an anonymous
// session, merges that cart. A failed merge never fails authentication.
func (s *authService) issue(ctx context.Context, user *domain.User, sessionID string) (*domain.AuthResult, error) {
	accessToken, err := s.tokens.Generate(user)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to generate token",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)

		return nil, err
	}

	result := &domain.AuthResult{
		User:        user,
		AccessToken: accessToken,
	}

	if sessionID != "" && s.carts != nil {
		cartID, err := s.carts.MergeAnonymousCart(ctx, sessionID, user.ID)
		if err != nil {
			mylogger.Warn(
				ctx,
				s.logger,
				"Cart merge failed",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		} else {
			result.CartID = &cartID
		}
	}

	return result, nil
}

func (s *authService) Me(ctx context.Context, userID int64) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *authService) ValidateToken(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		mylogger.Debug(ctx, s.logger, "Token rejected", zap.Error(err))
		return nil, err
	}

	return claims, nil
}

// AuthenticateAdmin accepts the configured back-office credential or any
// stored user with the admin role.
func (s *authService) AuthenticateAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.AuthenticateAdmin")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if s.admin.PasswordHash != "" && strings.EqualFold(email, s.admin.Email) {
		if bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)) != nil {
			mylogger.Warn(ctx, s.logger, "Invalid admin password")
			return nil, ErrInvalidCredentials
		}

		return &domain.User{
			Email: strings.ToLower(email),
			Role:  domain.RoleAdmin,
		}, nil
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}

		span.RecordError(err)
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Role != domain.RoleAdmin {
		mylogger.Warn(ctx, s.logger, "Non-admin tried back-office login", zap.Int64("user_id", user.ID))
		return nil, ErrForbidden
	}

	return user, nil
}

// ForgotPassword issues a one-hour reset token and queues the
// password-reset email. Unknown addresses succeed silently.
func (s *authService) ForgotPassword(ctx context.Context, input *domain.ForgotPasswordInput) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	if err := validateStruct(s.validator, input); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			mylogger.Info(ctx, s.logger, "Password reset requested for unknown email")
			return nil
		}

		span.RecordError(err)
		return err
	}

	resetToken, err := generateResetToken()
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to generate reset token",
			zap.Error(err),
		)

		return err
	}

	data, err := json.Marshal(domain.PasswordResetData{
		Name:     user.FullName(),
		ResetURL: s.baseURL + "/reset-password?token=" + url.QueryEscape(resetToken),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reset data: %w", err)
	}

	return inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.userRepo.SetResetToken(ctx, tx, user.ID, resetToken, time.Now().Add(resetTokenTTL)); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, s.logger, pendingEvent{
			topic:         domain.TopicNotificationEvents,
			aggregateType: domain.AggregateEmail,
			aggregateID:   user.Email,
			eventType:     domain.EventEmailRequested,
			payload: domain.EmailRequestedEvent{
				Type: domain.EmailPasswordReset,
				To:   user.Email,
				Data: data,
			},
		})
	})
}

func (s *authService) ResetPassword(ctx context.Context, input *domain.ResetPasswordInput) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	if err := validateStruct(s.validator, input); err != nil {
		return err
	}
	if err := s.passwords.ValidatePassword(input.Password); err != nil {
		return NewValidationError("password", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Error hashing password",
			zap.Error(err),
		)

		return fmt.Errorf("error hashing password: %w", err)
	}

	return inTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		user, err := s.userRepo.ResetPassword(ctx, tx, input.Token, string(hash))
		if err != nil {
			return err
		}

		mylogger.Info(ctx, s.logger, "Password reset", zap.Int64("user_id", user.ID))
		return nil
	})
}

func (s *authService) ListCustomers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.userRepo.List(ctx, domain.RoleCustomer, limit, offset)
}

func (s *authService) DeleteCustomer(ctx context.Context, id int64) error {
	return s.userRepo.DeleteByID(ctx, id)
}

func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
