package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// productNamespace derives stable ids so repeated seeding recognises its own rows.
var productNamespace = uuid.MustParse("7c0e9a4e-3f1d-4f4b-9a53-3a0f3d1c5e21")

type sampleProduct struct {
	name        string
	price       string
	description string
}

var sampleProducts = []sampleProduct{
	{name: "Espresso Beans 1kg", price: "24.50", description: "Dark roast whole beans"},
	{name: "Paper Filters (100)", price: "4.99"},
	{name: "Ceramic Mug", price: "12.00", description: "350ml, dishwasher safe"},
	{name: "Milk Frother", price: "39.90"},
	{name: "Gift Card", price: "50.00", description: "Redeemable in store"},
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Products inserts the sample catalog, skipping entries already present.
func (s *Seeder) Products(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	inserted := 0

	for _, sample := range sampleProducts {
		id := uuid.NewSHA1(productNamespace, []byte(sample.name)).String()
		exists, err := s.db.NewSelect().Model((*entity.Product)(nil)).Where("p.id = ?", id).Exists(ctx)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}

		product := &entity.Product{
			ID:        id,
			Name:      sample.name,
			Price:     decimal.RequireFromString(sample.price),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if sample.description != "" {
			description := sample.description
			product.Description = &description
		}
		if _, err := s.db.NewInsert().Model(product).Exec(ctx); err != nil {
			return inserted, err
		}
		inserted++
	}

	if s.logger != nil {
		s.logger.Info("seeded products", zap.Int("inserted", inserted), zap.Int("samples", len(sampleProducts)))
	}
	return inserted, nil
}
