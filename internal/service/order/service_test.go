package order

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

type memoryRepository struct {
	mu       sync.Mutex
	catalog  map[string]*entity.Product
	orders   map[string]*entity.Order
	takenIDs int
	creates  int
}

func newMemoryRepository(products ...*entity.Product) *memoryRepository {
	catalog := make(map[string]*entity.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	return &memoryRepository{catalog: catalog, orders: make(map[string]*entity.Order)}
}

func (m *memoryRepository) Create(_ context.Context, order *entity.Order, next func() string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	if err := order.ApplyCatalogPrices(m.catalog); err != nil {
		return err
	}
	if m.takenIDs > 0 {
		m.takenIDs--
		return repo.ErrDisplayIDTaken
	}
	order.DisplayID = next()
	for i, item := range order.Items {
		item.Position = i
	}
	stored := *order
	m.orders[order.ID] = &stored
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, id string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memoryRepository) List(_ context.Context, filter repo.ListFilter) ([]*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search := strings.ToLower(filter.Search)
	out := make([]*entity.Order, 0)
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(o.DisplayID), search) &&
			!strings.Contains(strings.ToLower(o.CustomerName), search) {
			continue
		}
		cp := *o
		cp.ItemCount = len(o.Items)
		cp.Items = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepository) Transition(_ context.Context, id string, status entity.OrderStatus, at time.Time) (*entity.Order, entity.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, "", repo.ErrNotFound
	}
	previous := order.Status
	if err := order.TransitionTo(status, at); err != nil {
		return nil, previous, err
	}
	cp := *order
	return &cp, previous, nil
}

func (m *memoryRepository) TotalsByStatus(context.Context) ([]repo.StatusTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus := make(map[entity.OrderStatus]*repo.StatusTotal)
	for _, o := range m.orders {
		t, ok := byStatus[o.Status]
		if !ok {
			t = &repo.StatusTotal{Status: o.Status, Amount: decimal.Zero}
			byStatus[o.Status] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(o.TotalAmount)
	}
	out := make([]repo.StatusTotal, 0, len(byStatus))
	for _, t := range byStatus {
		out = append(out, *t)
	}
	return out, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, value)
	return p.err
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "orderdesk.orders" }

func (p *recordingPublisher) events(t *testing.T) []Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, 0, len(p.messages))
	for _, raw := range p.messages {
		var e Event
		require.NoError(t, json.Unmarshal(raw, &e))
		out = append(out, e)
	}
	return out
}

func newProduct(name, price string) *entity.Product {
	return &entity.Product{ID: uuid.NewString(), Name: name, Price: decimal.RequireFromString(price)}
}

func newTestService(t *testing.T, r Repository, pub messaging.Client) *Service {
	t.Helper()
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Orders.DisplayIDPrefix = "ORD-"
	cfg.Orders.CreateAttempts = 3
	return NewService(Params{Repository: r, Config: cfg, Logger: zap.NewNop(), Publisher: pub})
}

func TestCreateAndLifecycle(t *testing.T) {
	p1 := newProduct("Coffee", "100")
	p2 := newProduct("Tea", "50")
	r := newMemoryRepository(p1, p2)
	pub := &recordingPublisher{}
	svc := newTestService(t, r, pub)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateCommand{
		CustomerName: "  Alice  ",
		Items: []CreateItem{
			{ProductID: p1.ID, Quantity: 2},
			{ProductID: p2.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Alice", order.CustomerName)
	require.Equal(t, entity.OrderStatusNew, order.Status)
	require.True(t, decimal.NewFromInt(250).Equal(order.TotalAmount))
	require.True(t, strings.HasPrefix(order.DisplayID, "ORD-"))
	require.Len(t, order.DisplayID, len("ORD-")+9)
	require.Len(t, order.Items, 2)

	order, err = svc.Transition(ctx, order.ID, "PROCESSING")
	require.NoError(t, err)
	require.Equal(t, entity.OrderStatusProcessing, order.Status)

	_, err = svc.Transition(ctx, order.ID, "NEW")
	require.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition))
	require.Equal(t, "PROCESSING", errorbank.From(err).Details()["from"])
	require.Equal(t, "NEW", errorbank.From(err).Details()["to"])

	order, err = svc.Transition(ctx, order.ID, "COMPLETED")
	require.NoError(t, err)
	order, err = svc.Transition(ctx, order.ID, "ARCHIVED")
	require.NoError(t, err)
	require.Equal(t, entity.OrderStatusArchived, order.Status)

	for _, status := range entity.OrderStatuses() {
		_, err = svc.Transition(ctx, order.ID, string(status))
		require.True(t, errorbank.IsKind(err, errorbank.KindInvalidTransition), status)
	}

	events := pub.events(t)
	require.Len(t, events, 4)
	require.Equal(t, EventOrderCreated, events[0].Type)
	require.Equal(t, "250.00", events[0].TotalAmount)
	require.Equal(t, EventOrderStatusChanged, events[1].Type)
	require.Equal(t, "NEW", events[1].PreviousStatus)
	require.Equal(t, "PROCESSING", events[1].Status)
}

func TestCreateValidationPersistsNothing(t *testing.T) {
	p := newProduct("Coffee", "10")
	valid := []CreateItem{{ProductID: p.ID, Quantity: 1}}

	tests := []struct {
		name string
		cmd  CreateCommand
	}{
		{name: "blank customer", cmd: CreateCommand{CustomerName: "   ", Items: valid}},
		{name: "no items", cmd: CreateCommand{CustomerName: "Bob"}},
		{name: "malformed product id", cmd: CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: "nope", Quantity: 1}}}},
		{name: "zero quantity", cmd: CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: p.ID, Quantity: 0}}}},
		{name: "negative quantity", cmd: CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: p.ID, Quantity: -3}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newMemoryRepository(p)
			pub := &recordingPublisher{}
			svc := newTestService(t, r, pub)

			_, err := svc.Create(context.Background(), tc.cmd)
			require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest), err)
			require.Zero(t, r.creates)
			require.Empty(t, pub.events(t))
		})
	}
}

func TestCreateUnknownProduct(t *testing.T) {
	p := newProduct("Coffee", "10")
	missing := uuid.NewString()
	r := newMemoryRepository(p)
	svc := newTestService(t, r, &recordingPublisher{})

	_, err := svc.Create(context.Background(), CreateCommand{
		CustomerName: "Bob",
		Items:        []CreateItem{{ProductID: p.ID, Quantity: 1}, {ProductID: missing, Quantity: 1}},
	})
	require.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	require.Contains(t, err.Error(), missing)
	require.Empty(t, r.orders)
}

func TestCreateOptionalFieldsBlankBecomeAbsent(t *testing.T) {
	p := newProduct("Coffee", "10")
	svc := newTestService(t, newMemoryRepository(p), nil)
	blank := "   "
	email := " bob@example.com "

	order, err := svc.Create(context.Background(), CreateCommand{
		CustomerName:  "Bob",
		CustomerPhone: &blank,
		CustomerEmail: &email,
		Items:         []CreateItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Nil(t, order.CustomerPhone)
	require.Nil(t, order.Note)
	require.NotNil(t, order.CustomerEmail)
	require.Equal(t, "bob@example.com", *order.CustomerEmail)
}

func TestCreateRetriesDisplayIDCollisions(t *testing.T) {
	p := newProduct("Coffee", "10")
	cmd := CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: p.ID, Quantity: 1}}}

	r := newMemoryRepository(p)
	r.takenIDs = 2
	svc := newTestService(t, r, nil)
	_, err := svc.Create(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, 3, r.creates)

	r = newMemoryRepository(p)
	r.takenIDs = 3
	svc = newTestService(t, r, nil)
	_, err = svc.Create(context.Background(), cmd)
	require.True(t, errorbank.IsKind(err, errorbank.KindInternal))
	require.Equal(t, "failed to create order", errorbank.From(err).Message())
	require.Equal(t, 3, r.creates)
}

func TestPriceChangesDoNotAffectExistingOrders(t *testing.T) {
	p := newProduct("Coffee", "100")
	r := newMemoryRepository(p)
	svc := newTestService(t, r, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: p.ID, Quantity: 3}}})
	require.NoError(t, err)

	p.Price = decimal.NewFromInt(1)

	loaded, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(300).Equal(loaded.TotalAmount))
	require.True(t, decimal.NewFromInt(100).Equal(loaded.Items[0].PriceAtPurchase))
}

func TestGetAndTransitionErrors(t *testing.T) {
	svc := newTestService(t, newMemoryRepository(), nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "not-a-uuid")
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = svc.Get(ctx, uuid.NewString())
	require.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = svc.Transition(ctx, uuid.NewString(), "SHIPPED")
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	require.Equal(t, entity.OrderStatusNames(), errorbank.From(err).Details()["validStatuses"])

	_, err = svc.Transition(ctx, uuid.NewString(), "processing")
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = svc.Transition(ctx, uuid.NewString(), "")
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = svc.Transition(ctx, uuid.NewString(), "CANCELLED")
	require.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

type conflictingRepository struct {
	*memoryRepository
}

func (conflictingRepository) Transition(context.Context, string, entity.OrderStatus, time.Time) (*entity.Order, entity.OrderStatus, error) {
	return nil, entity.OrderStatusNew, repo.ErrStatusChanged
}

func TestTransitionConcurrentChangeIsConflict(t *testing.T) {
	svc := newTestService(t, conflictingRepository{newMemoryRepository()}, nil)
	_, err := svc.Transition(context.Background(), uuid.NewString(), "PROCESSING")
	require.True(t, errorbank.IsKind(err, errorbank.KindConflict))
}

func TestListFilters(t *testing.T) {
	p := newProduct("Coffee", "10")
	r := newMemoryRepository(p)
	svc := newTestService(t, r, nil)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var clock int
	svc.now = func() time.Time {
		clock++
		return base.Add(time.Duration(clock) * time.Minute)
	}

	alice, err := svc.Create(ctx, CreateCommand{CustomerName: "Alice Smith", Items: []CreateItem{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	bob, err := svc.Create(ctx, CreateCommand{CustomerName: "Bob", Items: []CreateItem{{ProductID: p.ID, Quantity: 2}}})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, bob.ID, "PROCESSING")
	require.NoError(t, err)

	all, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, bob.ID, all[0].ID)
	require.Equal(t, 1, all[0].ItemCount)

	processing, err := svc.List(ctx, ListQuery{Status: "PROCESSING"})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	require.Equal(t, bob.ID, processing[0].ID)

	searched, err := svc.List(ctx, ListQuery{Search: "SMITH"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	require.Equal(t, alice.ID, searched[0].ID)

	none, err := svc.List(ctx, ListQuery{Status: "NEW", Search: "bob"})
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = svc.List(ctx, ListQuery{Status: "DONE"})
	require.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestStats(t *testing.T) {
	p := newProduct("Coffee", "10")
	svc := newTestService(t, newMemoryRepository(p), nil)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.OrderCount)
	require.True(t, stats.AverageOrderValue.IsZero())
	require.Len(t, stats.ByStatus, len(entity.OrderStatuses()))

	for _, qty := range []int{1, 2, 4} {
		order, err := svc.Create(ctx, CreateCommand{CustomerName: "Carol", Items: []CreateItem{{ProductID: p.ID, Quantity: qty}}})
		require.NoError(t, err)
		if qty == 4 {
			continue
		}
		_, err = svc.Transition(ctx, order.ID, "PROCESSING")
		require.NoError(t, err)
		_, err = svc.Transition(ctx, order.ID, "COMPLETED")
		require.NoError(t, err)
	}

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.OrderCount)
	require.Equal(t, 2, stats.ByStatus[entity.OrderStatusCompleted])
	require.Equal(t, 1, stats.ByStatus[entity.OrderStatusNew])
	require.True(t, decimal.NewFromInt(30).Equal(stats.CompletedRevenue))
	require.True(t, decimal.NewFromInt(15).Equal(stats.AverageOrderValue))
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	p := newProduct("Coffee", "10")
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, newMemoryRepository(p), pub)

	_, err := svc.Create(context.Background(), CreateCommand{CustomerName: "Dan", Items: []CreateItem{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	require.Len(t, pub.events(t), 1)
}

func TestFullMemoryBusDoesNotBlockWrites(t *testing.T) {
	p := newProduct("Coffee", "10")
	bus := messaging.NewMemoryClient("orderdesk.orders", nil)
	for {
		if err := bus.Publish(context.Background(), nil, []byte("backlog")); err != nil {
			require.ErrorIs(t, err, messaging.ErrBufferFull)
			break
		}
	}

	core, logs := observer.New(zapcore.WarnLevel)
	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Orders.DisplayIDPrefix = "ORD-"
	svc := NewService(Params{Repository: newMemoryRepository(p), Config: cfg, Logger: zap.New(core), Publisher: bus})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	order, err := svc.Create(ctx, CreateCommand{CustomerName: "Eve", Items: []CreateItem{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, order.ID, "PROCESSING")
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	dropped := logs.FilterMessage("publish order event").All()
	require.Len(t, dropped, 2)
	require.Equal(t, order.ID, dropped[0].ContextMap()["order_id"])
}
