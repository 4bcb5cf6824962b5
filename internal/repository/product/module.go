package product

import "go.uber.org/fx"

// Module provides the product repository backed by the shared writer/reader connections.
var Module = fx.Module("product_repository", fx.Provide(NewRepository))
