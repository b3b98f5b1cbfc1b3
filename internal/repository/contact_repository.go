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

type ContactRepository interface {
	Create(ctx context.Context, tx pgx.Tx, msg *domain.ContactMessage) error
	List(ctx context.Context, status *domain.ContactStatus) ([]domain.ContactMessage, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ContactStatus) (*domain.ContactMessage, error)
	DeleteByID(ctx context.Context, id int64) error
}

type contactRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewContactRepository(pool *pgxpool.Pool, logger *zap.Logger) ContactRepository {
	return &contactRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/contact_repository"),
	}
}

const contactColumns = `id, name, email, phone, subject, message, status, created_at, updated_at`

func scanContact(row pgx.Row) (*domain.ContactMessage, error) {
	var m domain.ContactMessage
	if err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Phone,
		&m.Subject,
		&m.Message,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *contactRepo) Create(ctx context.Context, tx pgx.Tx, msg *domain.ContactMessage) error {
	ctx, span := r.tracer.Start(ctx, "ContactRepository.Create")
	defer span.End()

	query := `
		INSERT INTO contact_messages (name, email, phone, subject, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING status, created_at, updated_at, id;
	`

	if err := tx.QueryRow(
		ctx,
		query,
		msg.Name,
		msg.Email,
		msg.Phone,
		msg.Subject,
		msg.Message,
	).Scan(&msg.Status, &msg.CreatedAt, &msg.UpdatedAt, &msg.ID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert contact message",
			zap.Error(err),
		)

		return fmt.Errorf("error creating contact message: %w", err)
	}

	span.SetAttributes(attribute.Int64("contact_id", msg.ID))

	return nil
}

func (r *contactRepo) List(ctx context.Context, status *domain.ContactStatus) ([]domain.ContactMessage, error) {
	ctx, span := r.tracer.Start(ctx, "ContactRepository.List")
	defer span.End()

	var filter string
	if status != nil {
		filter = string(*status)
	}

	query := `
		SELECT ` + contactColumns + `
		FROM contact_messages
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC;
	`

	rows, err := r.pool.Query(ctx, query, filter)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list contact messages",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing contact messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.ContactMessage, 0)
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning contact message: %w", err)
		}
		messages = append(messages, *m)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("contact rows error: %w", err)
	}

	return messages, nil
}

func (r *contactRepo) UpdateStatus(ctx context.Context, id int64, status domain.ContactStatus) (*domain.ContactMessage, error) {
	ctx, span := r.tracer.Start(ctx, "ContactRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE contact_messages
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + contactColumns

	msg, err := scanContact(r.pool.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update contact message",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error updating contact message: %w", err)
	}

	return msg, nil
}

func (r *contactRepo) DeleteByID(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "ContactRepository.DeleteByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	commandTag, err := r.pool.Exec(ctx, `DELETE FROM contact_messages WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete contact message",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting contact message: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrContactNotFound
	}

	return nil
}
