package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/entity"
	service "github.com/Additional-Code/orderdesk/internal/service/auth"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

type stubService struct{}

func (stubService) Login(_ context.Context, username, password string) (*service.Session, error) {
	if username != "alice" || password != "secret1" {
		return nil, errorbank.Unauthorized("invalid username or password")
	}
	return &service.Session{
		Token:     "token-alice",
		ExpiresAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		User:      &entity.User{ID: "u-1", Username: "alice", Role: entity.RoleManager, PasswordHash: "hash"},
	}, nil
}

func (stubService) Authenticate(_ context.Context, token string) (service.Identity, error) {
	if token != "token-alice" {
		return service.Identity{}, errorbank.Unauthorized("invalid token")
	}
	return service.Identity{UserID: "u-1", Username: "alice", Role: entity.RoleManager}, nil
}

func newServer() *echo.Echo {
	e := echo.New()
	Register(e, NewHandler(stubService{}), middleware.NewAuth(stubService{}))
	return e
}

func TestLogin(t *testing.T) {
	e := newServer()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"secret1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "hash")

	var body struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				ID   string `json:"id"`
				Role string `json:"role"`
			} `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "token-alice", body.Data.Token)
	require.Equal(t, "manager", body.Data.User.Role)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	e := newServer()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token-alice")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)

	for _, header := range []string{"", "Bearer", "Basic token-alice", "Bearer other"} {
		req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set(echo.HeaderAuthorization, header)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
