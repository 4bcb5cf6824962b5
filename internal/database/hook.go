package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const maxLoggedQuery = 512

var dbMeter = otel.Meter("github.com/Additional-Code/orderdesk/database")

// QueryHook records query latency and logs failed or slow statements.
type QueryHook struct {
	logger    *zap.Logger
	threshold time.Duration
	duration  metric.Float64Histogram
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook builds a hook; a zero threshold disables slow query logging.
func NewQueryHook(logger *zap.Logger, threshold time.Duration) *QueryHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	duration, err := dbMeter.Float64Histogram("db.query.duration",
		metric.WithDescription("Database statement latency."),
		metric.WithUnit("ms"))
	if err != nil {
		logger.Warn("create db.query.duration histogram", zap.Error(err))
	}
	return &QueryHook{logger: logger, threshold: threshold, duration: duration}
}

// BeforeQuery implements bun.QueryHook.
func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	failed := event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows)

	if h.duration != nil {
		h.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
			attribute.String("operation", event.Operation()),
			attribute.Bool("error", failed),
		))
	}

	switch {
	case failed:
		h.logger.Warn("query failed",
			zap.String("operation", event.Operation()),
			zap.String("query", truncate(event.Query)),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
	case h.threshold > 0 && elapsed >= h.threshold:
		h.logger.Warn("slow query",
			zap.String("operation", event.Operation()),
			zap.String("query", truncate(event.Query)),
			zap.Duration("elapsed", elapsed),
		)
	}
}

func truncate(query string) string {
	if len(query) <= maxLoggedQuery {
		return query
	}
	return query[:maxLoggedQuery] + "..."
}
