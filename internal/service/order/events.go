package order

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// Event types published on the order topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event is the envelope published for order lifecycle changes.
type Event struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	DisplayID      string    `json:"displayId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	TotalAmount    string    `json:"totalAmount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func newEvent(eventType string, order *entity.Order, previous entity.OrderStatus, at time.Time) Event {
	return Event{
		Type:           eventType,
		OrderID:        order.ID,
		DisplayID:      order.DisplayID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		TotalAmount:    order.TotalAmount.StringFixed(2),
		OccurredAt:     at,
	}
}

// publish emits event on a best-effort basis; failures are logged, never returned.
func (s *Service) publish(ctx context.Context, event Event) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(event.OrderID), payload); err != nil {
		s.logger.Warn("publish order event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
