package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/product"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/product")

// Repository is the storage contract the product service depends on.
type Repository interface {
	Create(ctx context.Context, product *entity.Product) error
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	List(ctx context.Context) ([]*entity.Product, error)
	Update(ctx context.Context, product *entity.Product, columns ...string) error
	Delete(ctx context.Context, id string) error
}

// CreateCommand carries the input of product creation.
type CreateCommand struct {
	Name        string
	Price       decimal.Decimal
	Description *string
}

// UpdateCommand carries a partial product update. Nil fields are left unchanged;
// ClearDescription removes the description.
type UpdateCommand struct {
	Name             *string
	Price            *decimal.Decimal
	Description      *string
	ClearDescription bool
}

// Service encapsulates business logic around the product catalog.
type Service struct {
	repo   Repository
	cache  cache.Store
	logger *zap.Logger
	now    func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Cache      cache.Store
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   p.Repository,
		cache:  p.Cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the catalog newest first.
func (s *Service) List(ctx context.Context) ([]*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.List")
	defer span.End()

	products, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list products", errorbank.WithCause(err))
	}
	return products, nil
}

// Get returns a product, serving it from cache when possible.
func (s *Service) Get(ctx context.Context, id string) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Get", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}

	if cached, ok := s.getFromCache(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(span, err, "failed to load product")
	}
	s.storeInCache(ctx, product)
	return product, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Create")
	defer span.End()

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, errorbank.BadRequest("name is required")
	}
	if !cmd.Price.IsPositive() {
		return nil, errorbank.BadRequest("price must be greater than zero")
	}

	now := s.now()
	product := &entity.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Price:       cmd.Price,
		Description: optional(cmd.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, s.mapError(span, err, "failed to create product")
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

// Update applies a partial update. Prices of existing orders are snapshots and stay untouched.
func (s *Service) Update(ctx context.Context, id string, cmd UpdateCommand) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Update", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return nil, err
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(span, err, "failed to load product")
	}

	columns := make([]string, 0, 3)
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return nil, errorbank.BadRequest("name cannot be empty")
		}
		product.Name = name
		columns = append(columns, "name")
	}
	if cmd.Price != nil {
		if !cmd.Price.IsPositive() {
			return nil, errorbank.BadRequest("price must be greater than zero")
		}
		product.Price = *cmd.Price
		columns = append(columns, "price")
	}
	switch {
	case cmd.ClearDescription:
		product.Description = nil
		columns = append(columns, "description")
	case cmd.Description != nil:
		product.Description = optional(cmd.Description)
		columns = append(columns, "description")
	}

	product.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, product, columns...); err != nil {
		return nil, s.mapError(span, err, "failed to update product")
	}
	s.evict(ctx, id)

	s.logger.Info("product updated", zap.String("product_id", id), zap.Strings("columns", columns))
	return product, nil
}

// Delete removes a product that no order line references.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Delete", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := validateID(id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		var referenced *repo.ReferencedError
		if errors.As(err, &referenced) {
			return errorbank.Referenced(
				fmt.Sprintf("product is used in %d order items and cannot be deleted", referenced.Count),
				errorbank.WithDetail("referenceCount", referenced.Count))
		}
		return s.mapError(span, err, "failed to delete product")
	}
	s.evict(ctx, id)

	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *Service) mapError(span trace.Span, err error, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("product not found")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	s.logger.Error(message, zap.Error(err))
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errorbank.BadRequest("invalid product id", errorbank.WithCause(err))
	}
	return nil
}

func cacheKey(id string) string {
	return "product:" + id
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Product, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("product cache get failed", zap.String("product_id", id), zap.Error(err))
		}
		return nil, false
	}
	var product entity.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		s.logger.Warn("product cache decode failed", zap.String("product_id", id), zap.Error(err))
		return nil, false
	}
	return &product, true
}

func (s *Service) storeInCache(ctx context.Context, product *entity.Product) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(product)
	if err != nil {
		s.logger.Warn("product cache encode failed", zap.String("product_id", product.ID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKey(product.ID), payload, 0); err != nil {
		s.logger.Warn("product cache set failed", zap.String("product_id", product.ID), zap.Error(err))
	}
}

func (s *Service) evict(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("product cache evict failed", zap.String("product_id", id), zap.Error(err))
	}
}

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
