package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

func TestPublishStockLevel(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	var sent StockLevelChangedEvent
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicStockEvents {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "sku-1" {
			return errors.New("message not keyed by product id")
		}
		value, _ := msg.Value.Encode()
		return json.Unmarshal(value, &sent)
	})

	p := NewPublisherWithProducer(producer, "")
	err := p.PublishStockLevel(context.Background(), domain.StockLevelEvent{
		ProductID:  "sku-1",
		Signal:     domain.SignalOutOfStock,
		OnHand:     0,
		Available:  0,
		Version:    7,
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PublishStockLevel failed: %v", err)
	}
	if sent.EventType != EventTypeStockLevelChanged || sent.EventID == "" || sent.Signal != domain.SignalOutOfStock || sent.Version != 7 {
		t.Errorf("sent = %+v", sent)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestPublishStockLevel_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, TopicStockEvents)
	err := p.PublishStockLevel(context.Background(), domain.StockLevelEvent{ProductID: "sku-1", Signal: domain.SignalLowStock})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected ErrOutOfBrokers, got %v", err)
	}
	p.Close()
}

func message(eventType string, value []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: TopicOrderEvents,
		Key:   []byte("order-1"),
		Value: value,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(eventType)},
			{Key: []byte(HeaderEventID), Value: []byte("evt-1")},
		},
	}
}

func TestDispatch(t *testing.T) {
	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory", Topics: []string{TopicOrderEvents}})

	var got Message
	c.RegisterHandler(EventTypeOrderPaid, func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})
	c.RegisterHandler(EventTypeOrderCancelled, func(context.Context, Message) error {
		return errors.New("boom")
	})

	if err := c.Dispatch(context.Background(), message(EventTypeOrderPaid, []byte(`{"order_id":"order-1"}`))); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got.EventType != EventTypeOrderPaid || got.EventID != "evt-1" || got.Key != "order-1" || string(got.Value) != `{"order_id":"order-1"}` {
		t.Errorf("message = %+v", got)
	}

	if err := c.Dispatch(context.Background(), message(EventTypeOrderCancelled, nil)); err == nil || err.Error() != "boom" {
		t.Errorf("handler error = %v, want boom", err)
	}
	if err := c.Dispatch(context.Background(), message("payment.refunded", nil)); !errors.Is(err, ErrNoHandler) {
		t.Errorf("unknown type = %v, want ErrNoHandler", err)
	}
	if err := c.Dispatch(context.Background(), &sarama.ConsumerMessage{Topic: TopicOrderEvents}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("missing header = %v, want ErrNoHandler", err)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	var headers []*sarama.RecordHeader
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		for i := range msg.Headers {
			headers = append(headers, &msg.Headers[i])
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, TopicStockEvents)
	if err := p.PublishStockLevel(parent, domain.StockLevelEvent{ProductID: "sku-1", Signal: domain.SignalLowStock}); err != nil {
		t.Fatalf("PublishStockLevel failed: %v", err)
	}
	p.Close()

	if got := consumerHeaders(headers).Get("traceparent"); got == "" {
		t.Fatalf("traceparent header missing from %v", consumerHeaders(headers).Keys())
	}
	if got := consumerHeaders(headers).Get(HeaderContentType); got != contentTypeJSON {
		t.Errorf("content-type = %q", got)
	}

	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory"})
	var seen trace.TraceID
	c.RegisterHandler(EventTypeStockLevelChanged, func(ctx context.Context, _ Message) error {
		seen = trace.SpanContextFromContext(ctx).TraceID()
		return nil
	})
	err := c.Dispatch(context.Background(), &sarama.ConsumerMessage{Topic: TopicStockEvents, Headers: headers})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if seen != traceID {
		t.Errorf("handler trace id = %s, want %s", seen, traceID)
	}
}

func TestStart_RequiresHandlers(t *testing.T) {
	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory"})
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error when no handlers are registered")
	}
}

func TestDeliver_RetriesUntilHandled(t *testing.T) {
	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory", RetryInterval: time.Millisecond, MaxRetryInterval: 5 * time.Millisecond})

	calls := 0
	c.RegisterHandler(EventTypeOrderPaid, func(context.Context, Message) error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	})

	if err := c.deliver(context.Background(), message(EventTypeOrderPaid, nil)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
}

func TestDeliver_PermanentIsNotRetried(t *testing.T) {
	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory", RetryInterval: time.Millisecond})

	rejected := errors.New("reservation not found")
	calls := 0
	c.RegisterHandler(EventTypeOrderPaid, func(context.Context, Message) error {
		calls++
		return Permanent(rejected)
	})

	if err := c.deliver(context.Background(), message(EventTypeOrderPaid, nil)); !errors.Is(err, rejected) {
		t.Errorf("deliver error = %v, want the handler error", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if err := c.deliver(context.Background(), message("payment.refunded", nil)); !errors.Is(err, ErrNoHandler) {
		t.Errorf("unknown type = %v, want ErrNoHandler", err)
	}
}

func TestDeliver_StopsWithSession(t *testing.T) {
	c := newConsumer(nil, ConsumerConfig{GroupID: "inventory", RetryInterval: time.Millisecond, MaxRetryInterval: time.Millisecond})
	c.RegisterHandler(EventTypeOrderPaid, func(context.Context, Message) error {
		return errors.New("store unavailable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.deliver(ctx, message(EventTypeOrderPaid, nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deliver error = %v, want context.DeadlineExceeded", err)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	base := errors.New("bad payload")
	err := Permanent(base)
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Errorf("Permanent(%v) = %v", base, err)
	}
	if IsPermanent(base) {
		t.Error("plain error reported as permanent")
	}
}
