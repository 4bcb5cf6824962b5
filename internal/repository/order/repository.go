package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrDisplayIDTaken is returned when no free display id could be claimed.
	ErrDisplayIDTaken = errors.New("order display id already taken")
	// ErrStatusChanged is returned when the status moved between read and write.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

const displayIDAttempts = 5

// likeEscaper makes search input match literally inside a LIKE pattern using ESCAPE '!'.
// mysql reads a backslash inside string literals as an escape, so '!' is used instead.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// ListFilter narrows the orders returned by List.
type ListFilter struct {
	Status *entity.OrderStatus
	Search string
}

// StatusTotal aggregates orders sharing a status.
type StatusTotal struct {
	Status entity.OrderStatus `bun:"status"`
	Count  int                `bun:"order_count"`
	Amount decimal.Decimal    `bun:"amount"`
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create prices the order against the catalog and persists it with its items in one transaction.
// nextDisplayID is consulted until it yields a display id no stored order holds.
func (r *Repository) Create(ctx context.Context, order *entity.Order, nextDisplayID func() string) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		catalog, err := loadCatalog(ctx, tx, order.ProductIDs())
		if err != nil {
			return err
		}
		if err := order.ApplyCatalogPrices(catalog); err != nil {
			return err
		}

		displayID, err := claimDisplayID(ctx, tx, nextDisplayID)
		if err != nil {
			return err
		}
		order.DisplayID = displayID

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDisplayIDTaken
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			item.OrderID = order.ID
			item.Position = i
		}
		if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return err
	}
	span.SetAttributes(attribute.String("order.display_id", order.DisplayID))
	return nil
}

// GetByID fetches an order with its items and their products using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := loadDetail(ctx, r.reader, id)
	if errors.Is(err, ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns orders newest first, each annotated with its item count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	orders := make([]*entity.Order, 0)
	q := r.reader.NewSelect().
		Model(&orders).
		ColumnExpr("o.*").
		ColumnExpr("(SELECT COUNT(*) FROM order_items AS oi WHERE oi.order_id = o.id) AS item_count")

	if filter.Status != nil {
		span.SetAttributes(attribute.String("order.status", string(*filter.Status)))
		q = q.Where("o.status = ?", string(*filter.Status))
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where(`LOWER(o.display_id) LIKE ? ESCAPE '!'`, pattern).
				WhereOr(`LOWER(o.customer_name) LIKE ? ESCAPE '!'`, pattern)
		})
	}

	err := q.OrderExpr("o.created_at DESC").OrderExpr("o.display_id DESC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.count", len(orders)))
	return orders, nil
}

// Transition moves an order to status under a row lock and a compare-and-swap on the previous status.
// It returns the refreshed order and the status it left.
func (r *Repository) Transition(ctx context.Context, id string, status entity.OrderStatus, at time.Time) (*entity.Order, entity.OrderStatus, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.to", string(status)),
	))
	defer span.End()

	var previous entity.OrderStatus
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		order := new(entity.Order)
		q := tx.NewSelect().Model(order).Where("o.id = ?", id)
		if database.SupportsRowLocks(tx) {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		previous = order.Status
		if err := order.TransitionTo(status, at); err != nil {
			return err
		}

		res, err := tx.NewUpdate().
			Model(order).
			Column("status", "updated_at").
			Where("o.id = ?", id).
			Where("o.status = ?", string(previous)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if affected == 0 {
			return ErrStatusChanged
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, previous, err
	}
	span.SetAttributes(attribute.String("order.status.from", string(previous)))

	order, err := loadDetail(ctx, r.writer, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		return nil, previous, err
	}
	return order, previous, nil
}

// TotalsByStatus aggregates order counts and amounts per status.
func (r *Repository) TotalsByStatus(ctx context.Context) ([]StatusTotal, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.TotalsByStatus")
	defer span.End()

	var totals []StatusTotal
	err := r.reader.NewSelect().
		Model((*entity.Order)(nil)).
		ColumnExpr("o.status AS status").
		ColumnExpr("COUNT(*) AS order_count").
		ColumnExpr("COALESCE(SUM(o.total_amount), 0) AS amount").
		GroupExpr("o.status").
		Scan(ctx, &totals)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return nil, err
	}
	return totals, nil
}

func loadDetail(ctx context.Context, db bun.IDB, id string) (*entity.Order, error) {
	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where("o.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items := make([]*entity.OrderItem, 0)
	err = db.NewSelect().
		Model(&items).
		Relation("Product").
		Where("oi.order_id = ?", id).
		OrderExpr("oi.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	order.Items = items
	order.ItemCount = len(items)
	return order, nil
}

func loadCatalog(ctx context.Context, tx bun.Tx, ids []string) (map[string]*entity.Product, error) {
	catalog := make(map[string]*entity.Product, len(ids))
	if len(ids) == 0 {
		return catalog, nil
	}

	var products []*entity.Product
	if err := tx.NewSelect().Model(&products).Where("p.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	for _, p := range products {
		catalog[p.ID] = p
	}
	return catalog, nil
}

func claimDisplayID(ctx context.Context, tx bun.Tx, next func() string) (string, error) {
	for attempt := 0; attempt < displayIDAttempts; attempt++ {
		candidate := next()
		exists, err := tx.NewSelect().
			Model((*entity.Order)(nil)).
			Where("o.display_id = ?", candidate).
			Exists(ctx)
		if err != nil {
			return "", fmt.Errorf("check display id: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrDisplayIDTaken
}
