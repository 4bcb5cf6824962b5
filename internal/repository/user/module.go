package user

import "go.uber.org/fx"

// Module provides the user repository backed by the shared writer/reader connections.
var Module = fx.Module("user_repository", fx.Provide(NewRepository))
