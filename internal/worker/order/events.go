package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventHandler sets up a worker handler that records order lifecycle events.
func NewEventHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ordersvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Int64("offset", msg.Offset), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(
			attribute.String("order.event", event.Type),
			attribute.String("order.id", event.OrderID),
		)

		fields := []zap.Field{
			zap.String("order_id", event.OrderID),
			zap.String("display_id", event.DisplayID),
			zap.String("status", event.Status),
			zap.String("total", event.TotalAmount),
			zap.Time("occurred_at", event.OccurredAt),
		}
		switch event.Type {
		case ordersvc.EventOrderCreated:
			logger.Info("order created event processed", fields...)
		case ordersvc.EventOrderStatusChanged:
			logger.Info("order status change processed", append(fields, zap.String("previous_status", event.PreviousStatus))...)
		default:
			// Unknown types are acknowledged and skipped.
			logger.Warn("skipping unknown order event", zap.String("type", event.Type), zap.String("order_id", event.OrderID))
			span.SetStatus(codes.Error, fmt.Sprintf("unknown event type %q", event.Type))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
