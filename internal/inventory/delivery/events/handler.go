// Package events applies catalog and order events to the ledger. Every
// handler tolerates redelivery. Errors a retry cannot fix are returned as
// kafka.Permanent; anything else is retried by the consumer.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/metrics"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/usecase/command"
	"github.com/tair/inventory-engine/kafka"
	"github.com/tair/inventory-engine/pkg/logger"
)

const catalogActor = "catalog-service"

// Registrar is the part of the Kafka consumer the handlers attach to.
type Registrar interface {
	RegisterHandler(eventType string, handler kafka.EventHandler)
}

type Handler struct {
	create       *command.CreateInventoryHandler
	reservations *command.ReservationHandler
}

func NewHandler(create *command.CreateInventoryHandler, reservations *command.ReservationHandler) *Handler {
	return &Handler{create: create, reservations: reservations}
}

// Register attaches every handler to the consumer.
func (h *Handler) Register(r Registrar) {
	r.RegisterHandler(kafka.EventTypeProductCreated, h.observed(kafka.EventTypeProductCreated, h.HandleProductCreated))
	r.RegisterHandler(kafka.EventTypeOrderPaid, h.observed(kafka.EventTypeOrderPaid, h.HandleOrderPaid))
	r.RegisterHandler(kafka.EventTypeOrderCancelled, h.observed(kafka.EventTypeOrderCancelled, h.HandleOrderCancelled))
}

func (h *Handler) observed(eventType string, fn kafka.EventHandler) kafka.EventHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		ctx = logger.With(ctx, "event_type", eventType)
		ctx = logger.With(ctx, "topic", msg.Topic)
		err := fn(ctx, msg)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.EventsConsumedTotal.WithLabelValues(eventType, result).Inc()
		return err
	}
}

// HandleProductCreated opens the product in the ledger. A redelivered event
// finds the record already there and is acknowledged.
func (h *Handler) HandleProductCreated(ctx context.Context, msg kafka.Message) error {
	var event kafka.ProductCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.Permanent(fmt.Errorf("failed to unmarshal %s: %w", msg.EventType, err))
	}

	record, err := h.create.Handle(ctx, command.CreateInventoryCommand{
		ProductID:         event.ProductID,
		OnHand:            event.InitialStock,
		LowStockThreshold: event.LowStockThreshold,
		UnitCost:          event.UnitCost,
		ActorID:           catalogActor,
		Reason:            "catalog product created",
	})
	if errors.Is(err, domain.ErrInventoryExists) {
		logger.Debug(ctx).
			Str("event_id", event.EventID).
			Str("product_id", event.ProductID).
			Msg("Inventory already initialized")
		return nil
	}
	if err != nil {
		return classify(err)
	}

	logger.Info(ctx).
		Str("event_id", event.EventID).
		Str("product_id", record.ProductID).
		Int("on_hand", record.OnHand).
		Msg("Inventory initialized from catalog")
	return nil
}

// HandleOrderPaid confirms each hold of the order. One failing reservation
// does not stop the others; the joined error is returned. A redelivery after
// a transient failure finds the confirmed holds already applied.
func (h *Handler) HandleOrderPaid(ctx context.Context, msg kafka.Message) error {
	var event kafka.OrderPaidEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.Permanent(fmt.Errorf("failed to unmarshal %s: %w", msg.EventType, err))
	}

	return h.each(ctx, event.OrderID, event.ReservationIDs, func(id string) (*reservation.TransitionResult, error) {
		return h.reservations.Confirm(ctx, id)
	})
}

// HandleOrderCancelled releases each hold of the order.
func (h *Handler) HandleOrderCancelled(ctx context.Context, msg kafka.Message) error {
	var event kafka.OrderCancelledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.Permanent(fmt.Errorf("failed to unmarshal %s: %w", msg.EventType, err))
	}

	reason := event.Reason
	if reason == "" {
		reason = "order cancelled"
	}
	return h.each(ctx, event.OrderID, event.ReservationIDs, func(id string) (*reservation.TransitionResult, error) {
		return h.reservations.Release(ctx, id, reason)
	})
}

func (h *Handler) each(ctx context.Context, orderID string, ids []string, fn func(id string) (*reservation.TransitionResult, error)) error {
	var errs []error
	retry := false
	for _, id := range ids {
		result, err := fn(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("reservation %s: %w", id, err))
			retry = retry || !rejected(err)
			continue
		}
		logger.Info(ctx).
			Str("order_id", orderID).
			Str("reservation_id", id).
			Str("state", string(result.Reservation.State)).
			Bool("already_applied", result.AlreadyApplied()).
			Msg("Order event applied to reservation")
	}
	err := errors.Join(errs...)
	if err == nil || retry {
		return err
	}
	return kafka.Permanent(err)
}

// rejected reports an error the ledger will give again on every attempt.
func rejected(err error) bool {
	return errors.Is(err, domain.ErrReservationNotFound) ||
		errors.Is(err, domain.ErrInventoryNotFound) ||
		errors.Is(err, domain.ErrAlreadyTerminal) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvariantViolation) ||
		errors.Is(err, domain.ErrNegativeStock)
}

func classify(err error) error {
	if rejected(err) {
		return kafka.Permanent(err)
	}
	return err
}
