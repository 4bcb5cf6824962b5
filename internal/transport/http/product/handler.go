package product

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/product"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/product")

// Service is the catalog behaviour the HTTP layer needs.
type Service interface {
	List(ctx context.Context) ([]*entity.Product, error)
	Get(ctx context.Context, id string) (*entity.Product, error)
	Create(ctx context.Context, cmd service.CreateCommand) (*entity.Product, error)
	Update(ctx context.Context, id string, cmd service.UpdateCommand) (*entity.Product, error)
	Delete(ctx context.Context, id string) error
}

// Handler exposes catalog endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs a product Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance. Writes are restricted to admins and managers.
func Register(e *echo.Echo, h *Handler, auth *middleware.Auth) {
	g := e.Group("/products", auth.Authenticated())
	g.GET("", h.list)
	g.GET("/:id", h.getByID)

	writers := auth.RequireRole(entity.RoleAdmin, entity.RoleManager)
	g.POST("", h.create, writers)
	g.PUT("/:id", h.update, writers)
	g.DELETE("/:id", h.delete, writers)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	defer span.End()

	products, err := h.svc.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewProducts(products)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "products.getByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewProduct(product)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Name        string           `json:"name"`
		Price       *decimal.Decimal `json:"price"`
		Description *string          `json:"description"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Price == nil {
		return b.WithError(errorbank.BadRequest("price is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.create")
	defer span.End()

	product, err := h.svc.Create(ctx, service.CreateCommand{
		Name:        payload.Name,
		Price:       *payload.Price,
		Description: payload.Description,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created("/products/" + product.ID).WithData(dto.NewProduct(product)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	// Raw fields tell an explicit null description apart from an absent one.
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	cmd, err := decodeUpdate(fields)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.update", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	product, err := h.svc.Update(ctx, id, cmd)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewProduct(product)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "products.delete", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

var jsonNull = []byte("null")

func decodeUpdate(fields map[string]json.RawMessage) (service.UpdateCommand, error) {
	var cmd service.UpdateCommand
	if raw, ok := fields["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return cmd, errorbank.BadRequest("name must be a string", errorbank.WithCause(err))
		}
		cmd.Name = &name
	}
	if raw, ok := fields["price"]; ok {
		var price decimal.Decimal
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			return cmd, errorbank.BadRequest("price must be a number")
		}
		if err := json.Unmarshal(raw, &price); err != nil {
			return cmd, errorbank.BadRequest("price must be a number", errorbank.WithCause(err))
		}
		cmd.Price = &price
	}
	if raw, ok := fields["description"]; ok {
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			cmd.ClearDescription = true
			return cmd, nil
		}
		var description string
		if err := json.Unmarshal(raw, &description); err != nil {
			return cmd, errorbank.BadRequest("description must be a string", errorbank.WithCause(err))
		}
		cmd.Description = &description
	}
	return cmd, nil
}
