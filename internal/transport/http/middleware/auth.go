package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	"github.com/Additional-Code/orderdesk/internal/service/auth"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

const identityKey = "orderdesk.identity"

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// Auth guards routes behind bearer tokens.
type Auth struct {
	authn Authenticator
}

// NewAuth constructs the auth middleware.
func NewAuth(authn Authenticator) *Auth {
	return &Auth{authn: authn}
}

// Authenticated rejects requests without a valid bearer token and stores the caller identity.
func (a *Auth) Authenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("access token missing")).Build()
			}
			identity, err := a.authn.Authenticate(c.Request().Context(), token)
			if err != nil {
				return response.New(c).WithError(err).Build()
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// RequireRole lets through authenticated callers holding one of roles.
func (a *Auth) RequireRole(roles ...entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := IdentityFrom(c)
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("not authenticated")).Build()
			}
			if !identity.HasRole(roles...) {
				return response.New(c).WithError(errorbank.Forbidden("insufficient permissions")).Build()
			}
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Authenticated.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	identity, ok := c.Get(identityKey).(auth.Identity)
	return identity, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
