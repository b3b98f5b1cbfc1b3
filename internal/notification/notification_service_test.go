package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/internal/notification"
	outboxDomain "github.com/sakashimaa/ravolux/pkg/outbox/domain"
	"github.com/sakashimaa/ravolux/pkg/testsuite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*domain.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, email *domain.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type NotificationTestSuite struct {
	testsuite.BaseSuite

	sender  *fakeSender
	metrics *metrics.Metrics
	service *notification.NotificationService
}

func (s *NotificationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Options{MigrationsPath: "../../migrations"})
}

func (s *NotificationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *NotificationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTables("processed_events")

	renderer, err := notification.NewRenderer("http://localhost:3000")
	s.Require().NoError(err)

	s.sender = &fakeSender{}
	s.metrics = metrics.New()
	s.service = notification.NewNotificationService(s.DbPool, renderer, s.sender, s.metrics, zap.NewNop())
}

func envelope(s *NotificationTestSuite, id int64, event string, payload any) outboxDomain.Envelope {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	return outboxDomain.Envelope{Event: event, EventID: id, Payload: body}
}

func (s *NotificationTestSuite) TestOrderCreated_SendsConfirmationOnce() {
	env := envelope(s, 1, domain.EventOrderCreated, domain.OrderCreatedEvent{
		OrderID:       7,
		OrderNumber:   "ORD-1-A",
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Subtotal:      decimal.NewFromInt(200),
		ShippingCost:  decimal.NewFromInt(50),
		TotalAmount:   decimal.NewFromInt(250),
	})

	s.Require().NoError(s.service.HandleEvent(s.Ctx, env))
	s.Require().NoError(s.service.HandleEvent(s.Ctx, env))

	s.Require().Equal(1, s.sender.count())
	s.Equal("ana@example.com", s.sender.sent[0].To)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.EmailsSent.WithLabelValues("order-confirmation", "sent")))
}

func (s *NotificationTestSuite) TestEventsMapToTemplates() {
	events := []outboxDomain.Envelope{
		envelope(s, 10, domain.EventUserRegistered, domain.UserRegisteredEvent{UserID: 1, Email: "new@example.com", FirstName: "Nina"}),
		envelope(s, 11, domain.EventContactReceived, domain.ContactReceivedEvent{ContactID: 1, Name: "Marta", Email: "marta@example.com"}),
		envelope(s, 12, domain.EventOrderStatusUpdated, domain.OrderStatusUpdatedEvent{OrderNumber: "ORD-1-A", CustomerEmail: "ana@example.com", Status: domain.OrderStatusShipped}),
		envelope(s, 13, domain.EventEmailRequested, domain.EmailRequestedEvent{
			Type: domain.EmailPasswordReset,
			To:   "reset@example.com",
			Data: json.RawMessage(`{"name":"Ivo","reset_url":"http://localhost:3000/reset-password?token=t"}`),
		}),
	}

	for _, env := range events {
		s.Require().NoError(s.service.HandleEvent(s.Ctx, env))
	}

	s.Require().Equal(4, s.sender.count())
	s.Equal("Welcome to RAVOLUX", s.sender.sent[0].Subject)
	s.Equal("We received your message", s.sender.sent[1].Subject)
	s.Equal("Order ORD-1-A is shipped", s.sender.sent[2].Subject)
	s.Equal("reset@example.com", s.sender.sent[3].To)
}

func (s *NotificationTestSuite) TestMalformedAndUnknownEventsAreDropped() {
	s.Require().NoError(s.service.HandleEvent(s.Ctx, outboxDomain.Envelope{
		Event:   domain.EventOrderCreated,
		EventID: 20,
		Payload: json.RawMessage(`{"order_id":"nope"`),
	}))
	s.Require().NoError(s.service.HandleEvent(s.Ctx, envelope(s, 21, "InventoryAdjusted", map[string]int{"qty": 1})))
	s.Require().NoError(s.service.HandleEvent(s.Ctx, envelope(s, 22, domain.EventEmailRequested, domain.EmailRequestedEvent{
		Type: "birthday",
		To:   "x@example.com",
	})))

	s.Zero(s.sender.count())
}

func (s *NotificationTestSuite) TestSendFailureLeavesEventRetryable() {
	s.sender.err = errors.New("smtp down")

	env := envelope(s, 30, domain.EventUserRegistered, domain.UserRegisteredEvent{UserID: 1, Email: "new@example.com"})
	s.Require().Error(s.service.HandleEvent(s.Ctx, env))

	var processed int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_events WHERE event_id = 30`).Scan(&processed)
	s.Require().NoError(err)
	s.Zero(processed)

	s.sender.err = nil
	s.Require().NoError(s.service.HandleEvent(s.Ctx, env))
	s.Equal(1, s.sender.count())
}

func TestNotificationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration tests need docker")
	}

	suite.Run(t, new(NotificationTestSuite))
}
