package http

import (
	"go.uber.org/fx"

	authtransport "github.com/Additional-Code/orderdesk/internal/transport/http/auth"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
	producttransport "github.com/Additional-Code/orderdesk/internal/transport/http/product"
	usertransport "github.com/Additional-Code/orderdesk/internal/transport/http/user"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	middleware.Module,
	authtransport.Module,
	ordertransport.Module,
	producttransport.Module,
	usertransport.Module,
)
