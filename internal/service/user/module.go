package user

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/orderdesk/internal/repository/user"
)

// Module provides the user service to Fx.
var Module = fx.Provide(NewService, asRepository)

func asRepository(r *repo.Repository) Repository { return r }
