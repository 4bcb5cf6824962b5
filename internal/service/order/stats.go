package order

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Stats summarises orders for the dashboard.
type Stats struct {
	OrderCount        int
	ByStatus          map[entity.OrderStatus]int
	CompletedRevenue  decimal.Decimal
	AverageOrderValue decimal.Decimal
}

// Stats aggregates order counts per status and the revenue of completed orders.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Stats")
	defer span.End()

	totals, err := s.repo.TotalsByStatus(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order stats", errorbank.WithCause(err))
	}

	stats := &Stats{
		ByStatus:          make(map[entity.OrderStatus]int, len(entity.OrderStatuses())),
		CompletedRevenue:  decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	for _, status := range entity.OrderStatuses() {
		stats.ByStatus[status] = 0
	}

	var completed int
	for _, total := range totals {
		stats.OrderCount += total.Count
		stats.ByStatus[total.Status] += total.Count
		if total.Status == entity.OrderStatusCompleted {
			completed = total.Count
			stats.CompletedRevenue = total.Amount
		}
	}
	if completed > 0 {
		stats.AverageOrderValue = stats.CompletedRevenue.Div(decimal.NewFromInt(int64(completed))).Round(2)
	}
	return stats, nil
}
