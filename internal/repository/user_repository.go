package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, role domain.Role, limit, offset int) ([]domain.User, error)
	DeleteByID(ctx context.Context, id int64) error
	SetResetToken(ctx context.Context, tx pgx.Tx, userID int64, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, tx pgx.Tx, token, passwordHash string) (*domain.User, error)
}

type userRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/user_repository"),
	}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("email", user.Email),
	)

	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}

	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at;
	`

	if err := tx.QueryRow(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		string(user.Role),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if isPgError(err, pgUniqueViolation) {
			return ErrUserAlreadyExists
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert user",
			zap.String("email", user.Email),
			zap.Error(err),
		)

		return fmt.Errorf("error creating user: %w", err)
	}

	return nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByEmail")
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to find user by email",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error finding user: %w", err)
	}

	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to find user by id",
			zap.Int64("user_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error finding user: %w", err)
	}

	return user, nil
}

func (r *userRepo) List(ctx context.Context, role domain.Role, limit, offset int) ([]domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("role", string(role)),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 = '' OR role = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3;
	`

	rows, err := r.pool.Query(ctx, query, string(role), limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list users",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("users rows error: %w", err)
	}

	return users, nil
}

func (r *userRepo) DeleteByID(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.DeleteByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	commandTag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete user",
			zap.Int64("user_id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting user: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepo) SetResetToken(ctx context.Context, tx pgx.Tx, userID int64, token string, expiresAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.SetResetToken")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
	)

	query := `
		UPDATE users
		SET reset_token = $2, reset_expires_at = $3, updated_at = NOW()
		WHERE id = $1;
	`

	commandTag, err := tx.Exec(ctx, query, userID, token, expiresAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to set reset token",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return fmt.Errorf("error setting reset token: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetPassword swaps the password hash for the user holding an unexpired
// token and burns the token.
func (r *userRepo) ResetPassword(ctx context.Context, tx pgx.Tx, token, passwordHash string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.ResetPassword")
	defer span.End()

	query := `
		UPDATE users
		SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL, updated_at = NOW()
		WHERE reset_token = $1 AND reset_expires_at > NOW()
		RETURNING ` + userColumns

	user, err := scanUser(tx.QueryRow(ctx, query, token, passwordHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidResetToken
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to reset password",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error resetting user password: %w", err)
	}

	return user, nil
}
