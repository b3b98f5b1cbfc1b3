package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/config"
	"github.com/sakashimaa/ravolux/pkg/kafka"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/ravolux/pkg/outbox/domain"
	"go.uber.org/zap"
)

// Topics the notification consumer subscribes to.
var Topics = []string{
	domain.TopicOrderEvents,
	domain.TopicUserEvents,
	domain.TopicNotificationEvents,
}

type EventHandler interface {
	HandleEvent(ctx context.Context, env outboxDomain.Envelope) error
}

type Consumer struct {
	handler EventHandler
	cfg     config.Kafka
	logger  *zap.Logger
}

func NewConsumer(handler EventHandler, cfg config.Kafka, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	group := kafka.NewConsumerGroup(
		c.cfg.Brokers,
		c.cfg.GroupID,
		Topics,
		c.processMessage,
		c.logger,
		kafka.WithRetry(c.cfg.RetryAttempts, c.cfg.RetryBackoff),
	)

	return group.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
	)

	var env outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Error unmarshalling envelope",
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)

		return nil
	}

	if env.EventID == 0 {
		mylogger.Warn(ctx, c.logger, "Envelope without event id", zap.String("event", env.Event))
		return nil
	}

	return c.handler.HandleEvent(ctx, env)
}
