package user

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	repo "github.com/Additional-Code/orderdesk/internal/repository/user"
	service "github.com/Additional-Code/orderdesk/internal/service/user"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/user")

// Service is the account management behaviour the HTTP layer needs.
type Service interface {
	List(ctx context.Context, query service.ListQuery) ([]*entity.User, error)
	Stats(ctx context.Context) (repo.Counts, error)
	Get(ctx context.Context, id string) (*entity.User, error)
	Create(ctx context.Context, cmd service.CreateCommand) (*entity.User, error)
	Update(ctx context.Context, actorID, id string, cmd service.UpdateCommand) (*entity.User, error)
	Toggle(ctx context.Context, actorID, id string) (*entity.User, error)
	Delete(ctx context.Context, actorID, id string) error
}

// Handler exposes account endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs a user Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
// Reads are open to admins and managers; writes to admins only.
func Register(e *echo.Echo, h *Handler, auth *middleware.Auth) {
	g := e.Group("/users", auth.Authenticated())

	readers := auth.RequireRole(entity.RoleAdmin, entity.RoleManager)
	g.GET("", h.list, readers)
	g.GET("/stats", h.stats, readers)
	g.GET("/:id", h.getByID, readers)

	admins := auth.RequireRole(entity.RoleAdmin)
	g.POST("", h.create, admins)
	g.PUT("/:id", h.update, admins)
	g.PUT("/:id/toggle", h.toggle, admins)
	g.DELETE("/:id", h.delete, admins)

	// Account creation is also reachable next to login.
	e.POST("/auth/create-user", h.create, auth.Authenticated(), admins)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "users.list")
	defer span.End()

	users, err := h.svc.List(ctx, service.ListQuery{
		Role:   c.QueryParam("role"),
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewUsers(users)).WithMeta("count", len(users)).Build()
}

func (h *Handler) stats(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "users.stats")
	defer span.End()

	counts, err := h.svc.Stats(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.UserStatsResponse{
		Total:     counts.Total,
		Active:    counts.Active,
		Inactive:  counts.Inactive,
		Admins:    counts.Admins,
		Managers:  counts.Managers,
		Employees: counts.Employees,
	}).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "users.getByID", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	user, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewUser(user)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "users.create")
	defer span.End()

	user, err := h.svc.Create(ctx, service.CreateCommand{
		Username: payload.Username,
		Password: payload.Password,
		Role:     payload.Role,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created("/users/" + user.ID).WithData(dto.NewUser(user)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"isActive"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "users.update", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	actor, _ := middleware.IdentityFrom(c)
	user, err := h.svc.Update(ctx, actor.UserID, id, service.UpdateCommand{
		Username: payload.Username,
		Password: payload.Password,
		Role:     payload.Role,
		IsActive: payload.IsActive,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewUser(user)).Build()
}

func (h *Handler) toggle(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "users.toggle", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	actor, _ := middleware.IdentityFrom(c)
	user, err := h.svc.Toggle(ctx, actor.UserID, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewUser(user)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "users.delete", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	actor, _ := middleware.IdentityFrom(c)
	if err := h.svc.Delete(ctx, actor.UserID, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}
