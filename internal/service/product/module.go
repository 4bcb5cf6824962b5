package product

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/orderdesk/internal/repository/product"
)

// Module provides the product service to Fx.
var Module = fx.Provide(NewService, asRepository)

func asRepository(r *repo.Repository) Repository { return r }
