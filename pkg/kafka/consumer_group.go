package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroup struct {
	brokers  []string
	groupID  string
	topics   []string
	handle   HandlerFunc
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

type ConsumerOption func(*ConsumerGroup)

// WithRetry sets how many times a failing message is handled before it is
// skipped, and the initial delay between attempts. The delay doubles.
func WithRetry(attempts int, backoff time.Duration) ConsumerOption {
	return func(c *ConsumerGroup) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handle HandlerFunc,
	logger *zap.Logger,
	opts ...ConsumerOption,
) *ConsumerGroup {
	c := &ConsumerGroup{
		brokers:  brokers,
		groupID:  groupID,
		topics:   topics,
		handle:   handle,
		attempts: 5,
		backoff:  time.Second,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func newConsumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_0_0_0
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	return cfg
}

// Run joins the group and consumes until ctx is cancelled.
func (c *ConsumerGroup) Run(ctx context.Context) (err error) {
	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, newConsumerConfig())
	if err != nil {
		return fmt.Errorf("create consumer group %s: %w", c.groupID, err)
	}
	defer func() {
		if closeErr := group.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close consumer group: %w", closeErr))
		}
	}()

	go func() {
		for groupErr := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.Error(groupErr))
		}
	}()

	claims := &claimHandler{
		group:  c,
		tracer: otel.Tracer("pkg/kafka/consumer"),
	}

	mylogger.Info(
		ctx,
		c.logger,
		"Consumer group started",
		zap.String("group_id", c.groupID),
		zap.Strings("topics", c.topics),
	)

	for ctx.Err() == nil {
		if err := group.Consume(ctx, c.topics, claims); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			mylogger.Error(ctx, c.logger, "Consume session ended with error", zap.Error(err))
		}
	}

	mylogger.Info(ctx, c.logger, "Consumer group stopping", zap.String("group_id", c.groupID))
	return nil
}

// process handles msg with retries. It reports false only when the session
// ended before the message could be handled, so the offset must stay put.
func (c *ConsumerGroup) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	delay := c.backoff

	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}

		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		}

		if attempt >= c.attempts {
			mylogger.Error(ctx, c.logger, "Giving up on message", fields...)
			return true
		}

		mylogger.Warn(ctx, c.logger, "Message handling failed, retrying", fields...)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
	}
}

type claimHandler struct {
	group  *ConsumerGroup
	tracer trace.Tracer
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ctx, span := h.startSpan(session.Context(), msg)
			done := h.group.process(ctx, msg)
			if !done {
				span.SetStatus(codes.Error, "session ended")
				span.End()
				return nil
			}

			session.MarkMessage(msg, "")
			span.End()
		}
	}
}

func (h *claimHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(
		ctx,
		"kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.partition", int(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
	)
}
