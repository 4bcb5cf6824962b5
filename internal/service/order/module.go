package order

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// Module provides the order service to Fx.
var Module = fx.Provide(NewService, asRepository)

func asRepository(r *repo.Repository) Repository { return r }
