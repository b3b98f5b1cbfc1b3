package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/ravolux/pkg/outbox/domain"
	outboxUtils "github.com/sakashimaa/ravolux/pkg/outbox/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NotificationService turns outbox events into emails. Every event id is
// delivered at most once.
type NotificationService struct {
	pool     *pgxpool.Pool
	renderer *Renderer
	sender   Sender
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewNotificationService(
	pool *pgxpool.Pool,
	renderer *Renderer,
	sender Sender,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		pool:     pool,
		renderer: renderer,
		sender:   sender,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("notification-service"),
	}
}

// HandleEvent sends the email an event maps to. Malformed payloads and
// unknown events are logged and dropped; only delivery failures are returned.
func (s *NotificationService) HandleEvent(ctx context.Context, env outboxDomain.Envelope) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("event", env.Event),
		attribute.Int64("event_id", env.EventID),
	)

	name, to, data, err := emailFor(env)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Dropping malformed event",
			zap.String("event", env.Event),
			zap.Int64("event_id", env.EventID),
			zap.Error(err),
		)

		return nil
	}
	if name == "" {
		mylogger.Debug(ctx, s.logger, "Ignored event type", zap.String("event", env.Event))
		return nil
	}

	email, err := s.renderer.Render(name, to, data)
	if err != nil {
		span.RecordError(err)
		s.count(name, "failed")
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to render email",
			zap.String("template", string(name)),
			zap.Int64("event_id", env.EventID),
			zap.Error(err),
		)

		return nil
	}

	err = outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, env.EventID, func(ctx context.Context) error {
		return s.sender.Send(ctx, email)
	})
	if err != nil {
		span.RecordError(err)
		s.count(name, "failed")
		return err
	}

	s.count(name, "sent")

	return nil
}

func (s *NotificationService) count(name domain.EmailTemplate, result string) {
	if s.metrics != nil {
		s.metrics.EmailsSent.WithLabelValues(string(name), result).Inc()
	}
}

// emailFor maps an event to its template, recipient and template data. An
// empty template means the event carries no email.
func emailFor(env outboxDomain.Envelope) (domain.EmailTemplate, string, json.RawMessage, error) {
	switch env.Event {
	case domain.EventOrderCreated:
		var e domain.OrderCreatedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return "", "", nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return domain.EmailOrderConfirmation, e.CustomerEmail, env.Payload, nil

	case domain.EventOrderStatusUpdated:
		var e domain.OrderStatusUpdatedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return "", "", nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return domain.EmailOrderStatusUpdate, e.CustomerEmail, env.Payload, nil

	case domain.EventUserRegistered:
		var e domain.UserRegisteredEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return "", "", nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		data, err := json.Marshal(domain.WelcomeData{Name: e.FirstName})
		if err != nil {
			return "", "", nil, err
		}
		return domain.EmailWelcome, e.Email, data, nil

	case domain.EventContactReceived:
		var e domain.ContactReceivedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return "", "", nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		data, err := json.Marshal(domain.ContactResponseData{Name: e.Name, Subject: e.Subject})
		if err != nil {
			return "", "", nil, err
		}
		return domain.EmailContactResponse, e.Email, data, nil

	case domain.EventEmailRequested:
		var e domain.EmailRequestedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return "", "", nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if !e.Type.Valid() {
			return "", "", nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, e.Type)
		}
		return e.Type, e.To, e.Data, nil
	}

	return "", "", nil, nil
}
