package product

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	service "github.com/Additional-Code/orderdesk/internal/service/product"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
)

// Module wires HTTP product handlers.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service) *Handler { return NewHandler(svc) }),
	fx.Invoke(func(e *echo.Echo, h *Handler, auth *middleware.Auth) {
		Register(e, h, auth)
	}),
)
