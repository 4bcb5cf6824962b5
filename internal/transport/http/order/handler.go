package order

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

// Service is the order behaviour the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*entity.Order, error)
	Get(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, query service.ListQuery) ([]*entity.Order, error)
	Transition(ctx context.Context, id, status string) (*entity.Order, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance. Every route requires an authenticated caller.
func Register(e *echo.Echo, h *Handler, auth *middleware.Auth) {
	g := e.Group("/orders", auth.Authenticated())
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.PUT("/:id/status", h.updateStatus)

	e.GET("/stats/orders", h.stats, auth.Authenticated())
}

type createItemPayload struct {
	ProductID string          `json:"productId"`
	Quantity  json.RawMessage `json:"quantity"`
}

type createPayload struct {
	CustomerName  string              `json:"customerName"`
	CustomerPhone *string             `json:"customerPhone"`
	CustomerEmail *string             `json:"customerEmail"`
	Note          *string             `json:"note"`
	Items         []createItemPayload `json:"items"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	cmd := service.CreateCommand{
		CustomerName:  payload.CustomerName,
		CustomerPhone: payload.CustomerPhone,
		CustomerEmail: payload.CustomerEmail,
		Note:          payload.Note,
		Items:         make([]service.CreateItem, 0, len(payload.Items)),
	}
	for i, item := range payload.Items {
		quantity, err := parseQuantity(item.Quantity)
		if err != nil {
			return b.WithError(errorbank.BadRequest("quantity must be a positive integer",
				errorbank.WithDetail("index", i))).Build()
		}
		cmd.Items = append(cmd.Items, service.CreateItem{ProductID: item.ProductID, Quantity: quantity})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create",
		trace.WithAttributes(attribute.Int("order.items", len(cmd.Items))))
	defer span.End()

	order, err := h.svc.Create(ctx, cmd)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.Created("/orders/" + order.ID).WithData(dto.NewOrderDetail(order)).Build()
}

var maxQuantity = decimal.NewFromInt(math.MaxInt32)

// parseQuantity accepts any JSON number with an integral value, so 2 and 2.0 are equal.
func parseQuantity(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || raw[0] == '"' {
		return 0, errors.New("quantity must be a JSON number")
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() || d.Abs().GreaterThan(maxQuantity) {
		return 0, errors.New("quantity must be an integer")
	}
	return int(d.IntPart()), nil
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	query := service.ListQuery{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(
		attribute.String("order.status", query.Status),
	))
	defer span.End()

	orders, err := h.svc.List(ctx, query)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderSummaries(orders)).WithMeta("count", len(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderDetail(order)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.to", payload.Status),
	))
	defer span.End()

	order, err := h.svc.Transition(ctx, id, payload.Status)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderDetail(order)).Build()
}

func (h *Handler) stats(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.stats")
	defer span.End()

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	return b.WithData(dto.OrderStatsResponse{
		OrderCount:        stats.OrderCount,
		ByStatus:          byStatus,
		CompletedRevenue:  stats.CompletedRevenue.InexactFloat64(),
		AverageOrderValue: stats.AverageOrderValue.InexactFloat64(),
	}).Build()
}
