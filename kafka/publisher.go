package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/pkg/logger"
)

const contentTypeJSON = "application/json"

// PublisherConfig configures the stock event producer.
type PublisherConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

func (c PublisherConfig) saramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}
	// Idempotent delivery needs acks from all replicas and a single
	// in-flight request per connection.
	config.Version = sarama.V2_6_0_0
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Keyed by product id; the hash partitioner keeps one product's events in order
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

// Publisher sends stock level events. It implements domain.StockEventPublisher.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	tracer   trace.Tracer
}

var _ domain.StockEventPublisher = (*Publisher)(nil)

// NewPublisher connects an idempotent sync producer to the brokers
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p := NewPublisherWithProducer(producer, cfg.Topic)
	logger.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", p.topic).
		Msg("Kafka publisher initialized")
	return p, nil
}

// NewPublisherWithProducer wraps an existing producer, e.g. sarama/mocks in tests
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = TopicStockEvents
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		tracer:   otel.Tracer("kafka-publisher"),
	}
}

// PublishStockLevel publishes a LOW_STOCK or OUT_OF_STOCK signal keyed by product id.
func (p *Publisher) PublishStockLevel(ctx context.Context, level domain.StockLevelEvent) error {
	event := StockLevelChangedEvent{
		EventID:         uuid.NewString(),
		EventType:       EventTypeStockLevelChanged,
		StockLevelEvent: level,
	}

	ctx, span := p.tracer.Start(ctx, "kafka.publish "+EventTypeStockLevelChanged,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("inventory.product_id", level.ProductID),
			attribute.String("inventory.signal", string(level.Signal)),
			attribute.Int64("inventory.version", level.Version),
		),
	)
	defer span.End()

	partition, offset, err := p.send(ctx, level.ProductID, event.EventType, event.EventID, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx).
			Err(err).
			Str("topic", p.topic).
			Str("product_id", level.ProductID).
			Str("signal", string(level.Signal)).
			Msg("Failed to publish stock level event")
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.destination.partition", int(partition)),
		attribute.Int64("messaging.kafka.message.offset", offset),
	)

	logger.Debug(ctx).
		Str("event_id", event.EventID).
		Str("product_id", level.ProductID).
		Str("signal", string(level.Signal)).
		Int("available", level.Available).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Stock level event published")
	return nil
}

// send marshals payload and writes it with the envelope headers and the
// trace context of ctx.
func (p *Publisher) send(ctx context.Context, key, eventType, eventID string, payload interface{}) (int32, int64, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(eventType)},
		{Key: []byte(HeaderEventID), Value: []byte(eventID)},
		{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSON)},
	}
	otel.GetTextMapPropagator().Inject(ctx, producerHeaders{headers: &headers})

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send %s to Kafka: %w", eventType, err)
	}
	return partition, offset, nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
