package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/pkg/logger"
)

// ErrNoHandler is returned by Dispatch for an event type nobody registered.
var ErrNoHandler = errors.New("no handler registered for event type")

// Message is a received event with its envelope metadata
type Message struct {
	Topic     string
	Key       string
	EventType string
	EventID   string
	Value     []byte
}

// EventHandler handles one decoded message. Handlers must be idempotent: an
// error is retried with backoff until the handler succeeds, returns a
// Permanent error, or the session ends.
type EventHandler func(ctx context.Context, msg Message) error

// Permanent marks a handler error that redelivery cannot fix. The message is
// logged and committed instead of retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

// ConsumerConfig configures the catalog/order event consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// FromOldest starts a new group at the beginning of each topic
	// instead of at the newest offset.
	FromOldest bool
	// RetryInterval and MaxRetryInterval bound the backoff between attempts
	// at a failing message. Zero means 200ms and 10s.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

func (c ConsumerConfig) retryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if c.RetryInterval > 0 {
		b.InitialInterval = c.RetryInterval
	}
	b.MaxInterval = 10 * time.Second
	if c.MaxRetryInterval > 0 {
		b.MaxInterval = c.MaxRetryInterval
	}
	// A message is retried until it succeeds or its session ends
	b.MaxElapsedTime = 0
	return b
}

func (c ConsumerConfig) saramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.FromOldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	config.Consumer.Return.Errors = true
	return config
}

// Consumer runs a consumer group and routes messages by their event_type header.
type Consumer struct {
	group  sarama.ConsumerGroup
	cfg    ConsumerConfig
	tracer trace.Tracer

	mu       sync.RWMutex
	handlers map[string]EventHandler

	wg sync.WaitGroup
}

// NewConsumer joins the consumer group
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("group_id", cfg.GroupID).
		Strs("topics", cfg.Topics).
		Msg("Kafka consumer initialized")

	return newConsumer(group, cfg), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		group:    group,
		cfg:      cfg,
		tracer:   otel.Tracer("kafka-consumer"),
		handlers: make(map[string]EventHandler),
	}
}

// RegisterHandler registers an event handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler EventHandler) {
	c.mu.Lock()
	c.handlers[eventType] = handler
	c.mu.Unlock()
	logger.Logger.Debug().Str("event_type", eventType).Msg("Event handler registered")
}

// Start consumes in the background until ctx is cancelled or Close is called.
// A failed session is retried with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	registered := len(c.handlers)
	c.mu.RUnlock()
	if registered == 0 {
		return errors.New("kafka consumer started without handlers")
	}

	handler := &groupHandler{consumer: c}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, handler)
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			logger.Logger.Error().Err(err).Str("group_id", c.cfg.GroupID).Msg("Consumer group error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", c.cfg.Topics).
		Str("group_id", c.cfg.GroupID).
		Int("handlers", registered).
		Msg("Kafka consumer started")
	return nil
}

func (c *Consumer) consume(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		// Consume returns at every rebalance; a nil error is a normal rejoin
		err := c.group.Consume(ctx, c.cfg.Topics, handler)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup), ctx.Err() != nil:
			logger.Logger.Info().Str("group_id", c.cfg.GroupID).Msg("Kafka consumer stopped")
			return
		case err == nil:
			b.Reset()
			continue
		}

		wait := b.NextBackOff()
		logger.Logger.Error().Err(err).Dur("retry_in", wait).Msg("Kafka consume session failed")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Close leaves the group and waits for the background goroutines
func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	err := c.group.Close()
	c.wg.Wait()
	return err
}

// Dispatch routes one message to the handler registered for its event_type header
func (c *Consumer) Dispatch(ctx context.Context, message *sarama.ConsumerMessage) error {
	headers := consumerHeaders(message.Headers)
	msg := Message{
		Topic:     message.Topic,
		Key:       string(message.Key),
		EventType: headers.Get(HeaderEventType),
		EventID:   headers.Get(HeaderEventID),
		Value:     message.Value,
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headers)
	ctx, span := c.tracer.Start(ctx, "kafka.consume "+msg.EventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source.name", message.Topic),
			attribute.String("messaging.kafka.consumer.group", c.cfg.GroupID),
			attribute.Int("messaging.kafka.source.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.message.offset", message.Offset),
			attribute.String("messaging.message.id", msg.EventID),
		),
	)
	defer span.End()

	handler, err := c.handlerFor(msg.EventType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return nil
}

// deliver dispatches message until it succeeds or fails permanently. An
// unknown event type is permanent. When ctx ends first, ctx.Err is returned
// and the message must stay unmarked.
func (c *Consumer) deliver(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := c.Dispatch(ctx, message)
		if errors.Is(err, ErrNoHandler) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx).
			Err(err).
			Str("topic", message.Topic).
			Int32("partition", message.Partition).
			Int64("offset", message.Offset).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Event handler failed, retrying")
	}
	return backoff.RetryNotify(operation, backoff.WithContext(c.cfg.retryBackOff(), ctx), notify)
}

func (c *Consumer) handlerFor(eventType string) (EventHandler, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrNoHandler, HeaderEventType)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	handler, ok := c.handlers[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, eventType)
	}
	return handler, nil
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	logger.Logger.Debug().Interface("claims", session.Claims()).Int32("generation", session.GenerationID()).Msg("Consumer group session started")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim retries a failing message in place. It is marked once it
// succeeds or fails permanently; a message still failing when the session
// ends is left unmarked and redelivered to the next owner of the partition.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			err := h.consumer.deliver(ctx, message)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				logger.Error(ctx).
					Err(err).
					Str("topic", message.Topic).
					Int32("partition", message.Partition).
					Int64("offset", message.Offset).
					Msg("Dropping event that cannot be handled")
			}
			session.MarkMessage(message, "")
		case <-ctx.Done():
			return nil
		}
	}
}
