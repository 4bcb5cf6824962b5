package order

import "go.uber.org/fx"

// Module provides the order repository backed by the shared writer/reader connections.
var Module = fx.Module("order_repository", fx.Provide(NewRepository))
