package auth

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/auth"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/auth")

// Service is the login behaviour the HTTP layer needs.
type Service interface {
	Login(ctx context.Context, username, password string) (*service.Session, error)
}

// Handler exposes authentication endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs an auth Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler, auth *middleware.Auth) {
	g := e.Group("/auth")
	g.POST("/login", h.login)
	g.GET("/me", h.me, auth.Authenticated())
}

func (h *Handler) login(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auth.login")
	defer span.End()

	session, err := h.svc.Login(ctx, payload.Username, payload.Password)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User: dto.IdentityResponse{
			ID:       session.User.ID,
			Username: session.User.Username,
			Role:     string(session.User.Role),
		},
	}).Build()
}

func (h *Handler) me(c echo.Context) error {
	b := response.New(c)

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return b.WithError(errorbank.Unauthorized("not authenticated")).Build()
	}
	return b.WithData(dto.IdentityResponse{
		ID:       identity.UserID,
		Username: identity.Username,
		Role:     string(identity.Role),
	}).Build()
}
