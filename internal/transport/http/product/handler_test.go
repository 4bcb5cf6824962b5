package product

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/entity"
	authsvc "github.com/Additional-Code/orderdesk/internal/service/auth"
	service "github.com/Additional-Code/orderdesk/internal/service/product"
	"github.com/Additional-Code/orderdesk/internal/transport/http/middleware"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(_ context.Context, token string) (authsvc.Identity, error) {
	role := entity.Role(token)
	if !role.Valid() {
		return authsvc.Identity{}, errorbank.Unauthorized("invalid token")
	}
	return authsvc.Identity{UserID: "u-" + token, Username: token, Role: role}, nil
}

type stubService struct {
	product   *entity.Product
	createCmd service.CreateCommand
	updateCmd service.UpdateCommand
	deleted   string
	err       error
}

func (s *stubService) List(context.Context) ([]*entity.Product, error) {
	return []*entity.Product{s.product}, s.err
}

func (s *stubService) Get(context.Context, string) (*entity.Product, error) {
	return s.product, s.err
}

func (s *stubService) Create(_ context.Context, cmd service.CreateCommand) (*entity.Product, error) {
	s.createCmd = cmd
	return s.product, s.err
}

func (s *stubService) Update(_ context.Context, _ string, cmd service.UpdateCommand) (*entity.Product, error) {
	s.updateCmd = cmd
	return s.product, s.err
}

func (s *stubService) Delete(_ context.Context, id string) error {
	s.deleted = id
	return s.err
}

func newServer(svc Service) *echo.Echo {
	e := echo.New()
	Register(e, NewHandler(svc), middleware.NewAuth(stubAuthenticator{}))
	return e
}

func do(e *echo.Echo, role, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+role)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sampleProduct() *entity.Product {
	return &entity.Product{ID: "p-1", Name: "Coffee", Price: decimal.RequireFromString("2.50")}
}

func TestWritesRequireAdminOrManager(t *testing.T) {
	svc := &stubService{product: sampleProduct()}
	e := newServer(svc)

	require.Equal(t, http.StatusOK, do(e, "employee", http.MethodGet, "/products", "").Code)
	require.Equal(t, http.StatusForbidden, do(e, "employee", http.MethodPost, "/products", `{"name":"Tea","price":1}`).Code)
	require.Equal(t, http.StatusForbidden, do(e, "employee", http.MethodDelete, "/products/p-1", "").Code)
	require.Empty(t, svc.deleted)
	require.Equal(t, http.StatusUnauthorized, do(e, "", http.MethodGet, "/products", "").Code)

	require.Equal(t, http.StatusCreated, do(e, "manager", http.MethodPost, "/products", `{"name":"Tea","price":"1.25"}`).Code)
	require.Equal(t, "Tea", svc.createCmd.Name)
	require.True(t, decimal.RequireFromString("1.25").Equal(svc.createCmd.Price))
}

func TestCreateRequiresPrice(t *testing.T) {
	e := newServer(&stubService{product: sampleProduct()})
	rec := do(e, "admin", http.MethodPost, "/products", `{"name":"Tea"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRendersProduct(t *testing.T) {
	e := newServer(&stubService{product: sampleProduct()})
	rec := do(e, "employee", http.MethodGet, "/products/p-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Coffee", body.Data["name"])
	require.EqualValues(t, 2.5, body.Data["price"])
	require.Nil(t, body.Data["description"])
}

func TestUpdateDistinguishesNullDescription(t *testing.T) {
	svc := &stubService{product: sampleProduct()}
	e := newServer(svc)

	require.Equal(t, http.StatusOK, do(e, "admin", http.MethodPut, "/products/p-1", `{"description":null}`).Code)
	require.True(t, svc.updateCmd.ClearDescription)
	require.Nil(t, svc.updateCmd.Name)
	require.Nil(t, svc.updateCmd.Price)

	require.Equal(t, http.StatusOK, do(e, "admin", http.MethodPut, "/products/p-1", `{"price":3,"description":"dark roast"}`).Code)
	require.False(t, svc.updateCmd.ClearDescription)
	require.Equal(t, "dark roast", *svc.updateCmd.Description)
	require.True(t, decimal.NewFromInt(3).Equal(*svc.updateCmd.Price))

	require.Equal(t, http.StatusBadRequest, do(e, "admin", http.MethodPut, "/products/p-1", `{"price":null}`).Code)
	require.Equal(t, http.StatusBadRequest, do(e, "admin", http.MethodPut, "/products/p-1", `{"name":5}`).Code)
}

func TestDelete(t *testing.T) {
	svc := &stubService{}
	e := newServer(svc)

	rec := do(e, "manager", http.MethodDelete, "/products/p-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, rec.Body.Len())
	require.Equal(t, "p-1", svc.deleted)

	svc.err = errorbank.Referenced("product is used in 2 order items and cannot be deleted",
		errorbank.WithDetail("referenceCount", 2))
	rec = do(e, "manager", http.MethodDelete, "/products/p-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Kind    string         `json:"kind"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "referenced", body.Error.Kind)
	require.EqualValues(t, 2, body.Error.Details["referenceCount"])
}
