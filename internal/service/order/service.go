package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/orderdesk/service/order")
)

// Repository is the storage contract the order service depends on.
type Repository interface {
	Create(ctx context.Context, order *entity.Order, nextDisplayID func() string) error
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, filter repo.ListFilter) ([]*entity.Order, error)
	Transition(ctx context.Context, id string, status entity.OrderStatus, at time.Time) (*entity.Order, entity.OrderStatus, error)
	TotalsByStatus(ctx context.Context) ([]repo.StatusTotal, error)
}

// CreateItem is one requested order line.
type CreateItem struct {
	ProductID string
	Quantity  int
}

// CreateCommand carries the input of order creation.
type CreateCommand struct {
	CustomerName  string
	CustomerPhone *string
	CustomerEmail *string
	Note          *string
	Items         []CreateItem
}

// ListQuery carries the optional list filters as received from callers.
type ListQuery struct {
	Status string
	Search string
}

// Service encapsulates business logic around orders.
type Service struct {
	repo           Repository
	logger         *zap.Logger
	publisher      messaging.Client
	messaging      messagingConfig
	displayIDs     func() string
	createAttempts int
	now            func() time.Time

	createdCounter     metric.Int64Counter
	transitionsCounter metric.Int64Counter
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	created, err := serviceMeter.Int64Counter("orders.created",
		metric.WithDescription("Orders successfully created."))
	if err != nil {
		logger.Warn("create orders.created counter", zap.Error(err))
	}
	transitions, err := serviceMeter.Int64Counter("orders.transitions",
		metric.WithDescription("Order status transitions applied."))
	if err != nil {
		logger.Warn("create orders.transitions counter", zap.Error(err))
	}

	return &Service{
		repo:      p.Repository,
		logger:    logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		displayIDs:         NewDisplayIDGenerator(p.Config.Orders.DisplayIDPrefix).Next,
		createAttempts:     max(p.Config.Orders.CreateAttempts, 1),
		now:                func() time.Time { return time.Now().UTC() },
		createdCounter:     created,
		transitionsCounter: transitions,
	}
}

// Create validates cmd, prices it against the catalog and stores the order with status NEW.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int("order.items", len(cmd.Items))))
	defer span.End()

	order, err := s.newOrder(cmd)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.repo.Create(ctx, order, s.displayIDs)
		if !errors.Is(err, repo.ErrDisplayIDTaken) || attempt >= s.createAttempts {
			break
		}
		s.logger.Warn("order display id collision; retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		var missing *entity.ProductNotFoundError
		if errors.As(err, &missing) {
			return nil, errorbank.NotFound(fmt.Sprintf("product %s not found", missing.ProductID),
				errorbank.WithDetail("productId", missing.ProductID))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.logger.Error("create order failed", zap.String("customer", order.CustomerName), zap.Error(err))
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	span.SetAttributes(attribute.String("order.display_id", order.DisplayID))
	if s.createdCounter != nil {
		s.createdCounter.Add(ctx, 1)
	}
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("display_id", order.DisplayID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)
	s.publish(ctx, newEvent(EventOrderCreated, order, "", order.CreatedAt))
	return order, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

// List returns order summaries newest first, filtered by status and free-text search.
func (s *Service) List(ctx context.Context, query ListQuery) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	var filter repo.ListFilter
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	filter.Search = strings.TrimSpace(query.Search)

	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Transition moves the order to the requested status when the lifecycle allows it.
func (s *Service) Transition(ctx context.Context, id, requested string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.to", requested),
	))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(requested) == "" {
		return nil, errorbank.BadRequest("status is required",
			errorbank.WithDetail("validStatuses", entity.OrderStatusNames()))
	}
	status, err := parseStatus(requested)
	if err != nil {
		return nil, err
	}

	order, previous, err := s.repo.Transition(ctx, id, status, s.now())
	if err != nil {
		var transitionErr *entity.TransitionError
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, errorbank.NotFound("order not found")
		case errors.As(err, &transitionErr):
			return nil, errorbank.InvalidTransition(
				fmt.Sprintf("invalid status transition %s -> %s", transitionErr.From, transitionErr.To),
				errorbank.WithDetails(map[string]any{
					"from":    string(transitionErr.From),
					"to":      string(transitionErr.To),
					"allowed": statusNames(transitionErr.From.NextStatuses()),
				}))
		case errors.Is(err, repo.ErrStatusChanged):
			return nil, errorbank.Conflict("order status changed concurrently; reload and retry")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.logger.Error("order transition failed", zap.String("order_id", id), zap.Error(err))
		return nil, errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	if s.transitionsCounter != nil {
		s.transitionsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(previous)),
			attribute.String("to", string(status)),
		))
	}
	s.logger.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("display_id", order.DisplayID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
	)
	s.publish(ctx, newEvent(EventOrderStatusChanged, order, previous, order.UpdatedAt))
	return order, nil
}

func (s *Service) newOrder(cmd CreateCommand) (*entity.Order, error) {
	name := strings.TrimSpace(cmd.CustomerName)
	if name == "" {
		return nil, errorbank.BadRequest("customerName is required")
	}
	if len(cmd.Items) == 0 {
		return nil, errorbank.BadRequest("order must contain at least one item")
	}

	now := s.now()
	order := &entity.Order{
		ID:            uuid.NewString(),
		CustomerName:  name,
		CustomerPhone: optional(cmd.CustomerPhone),
		CustomerEmail: optional(cmd.CustomerEmail),
		Note:          optional(cmd.Note),
		Status:        entity.OrderStatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]*entity.OrderItem, 0, len(cmd.Items)),
	}

	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if _, err := uuid.Parse(productID); err != nil {
			return nil, errorbank.BadRequest(fmt.Sprintf("item %d: invalid productId %q", i, item.ProductID),
				errorbank.WithDetail("index", i))
		}
		if item.Quantity <= 0 {
			return nil, errorbank.BadRequest(fmt.Sprintf("item %d: quantity for product %s must be a positive integer", i, productID),
				errorbank.WithDetail("index", i))
		}
		order.Items = append(order.Items, &entity.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}
	return order, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errorbank.BadRequest("invalid order id", errorbank.WithCause(err))
	}
	return nil
}

func parseStatus(raw string) (entity.OrderStatus, error) {
	status, err := entity.ParseOrderStatus(strings.TrimSpace(raw))
	if err != nil {
		return "", errorbank.BadRequest(err.Error(),
			errorbank.WithDetail("validStatuses", entity.OrderStatusNames()))
	}
	return status, nil
}

func statusNames(statuses []entity.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// optional trims v and maps blank input to nil.
func optional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
