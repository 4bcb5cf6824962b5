package auth

import (
	"go.uber.org/fx"

	repo "github.com/Additional-Code/orderdesk/internal/repository/user"
)

// Module provides the auth service to Fx.
var Module = fx.Provide(NewService, asUsers)

func asUsers(r *repo.Repository) Users { return r }
