package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/service/auth"
)

// Module provides the shared HTTP middleware.
var Module = fx.Provide(
	func(svc *auth.Service) *Auth { return NewAuth(svc) },
	func() (*Metrics, error) { return NewMetrics(prometheus.DefaultRegisterer) },
)
