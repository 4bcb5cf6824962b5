package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/logger"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	"github.com/Additional-Code/orderdesk/internal/observability"
	repositoryorder "github.com/Additional-Code/orderdesk/internal/repository/order"
	repositoryproduct "github.com/Additional-Code/orderdesk/internal/repository/product"
	repositoryuser "github.com/Additional-Code/orderdesk/internal/repository/user"
	grpcserver "github.com/Additional-Code/orderdesk/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderdesk/internal/server/http"
	serviceauth "github.com/Additional-Code/orderdesk/internal/service/auth"
	serviceorder "github.com/Additional-Code/orderdesk/internal/service/order"
	serviceproduct "github.com/Additional-Code/orderdesk/internal/service/product"
	serviceuser "github.com/Additional-Code/orderdesk/internal/service/user"
	transporthttp "github.com/Additional-Code/orderdesk/internal/transport/http"
	"github.com/Additional-Code/orderdesk/internal/worker"
	workerorder "github.com/Additional-Code/orderdesk/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryproduct.Module,
	repositoryuser.Module,
	serviceorder.Module,
	serviceproduct.Module,
	serviceuser.Module,
	serviceauth.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// GRPC adds the gRPC listener carrying the health service.
var GRPC = grpcserver.Module

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring: HTTP plus the optional gRPC listener.
var Module = fx.Options(
	HTTP,
	GRPC,
)

// EnableGRPC forces the gRPC listener on regardless of GRPC_ENABLED.
var EnableGRPC = fx.Decorate(func(cfg config.Config) config.Config {
	cfg.GRPC.Enabled = true
	return cfg
})
