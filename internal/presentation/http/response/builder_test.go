package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return e.NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBuildSuccess(t *testing.T) {
	c, rec := newContext()

	err := New(c).WithData(map[string]string{"id": "1"}).WithMeta("count", 1).WithMeta("", "ignored").Build()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, map[string]any{"id": "1"}, body["data"])
	require.Equal(t, map[string]any{"count": float64(1)}, body["meta"])
}

func TestBuildCreatedSetsLocation(t *testing.T) {
	c, rec := newContext()

	require.NoError(t, New(c).Created("/orders/abc").WithData("ok").Build())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/orders/abc", rec.Header().Get(echo.HeaderLocation))
}

func TestBuildNoContentHasNoBody(t *testing.T) {
	c, rec := newContext()

	require.NoError(t, New(c).WithStatus(http.StatusNoContent).Build())
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, rec.Body.Len())
}

func TestBuildError(t *testing.T) {
	c, rec := newContext()
	c.Response().Header().Set(echo.HeaderXRequestID, "req-1")

	appErr := errorbank.Referenced("product is referenced by orders", errorbank.WithDetail("referenceCount", 2))
	require.NoError(t, New(c).WithError(appErr).Build())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, map[string]any{
		"kind":    "referenced",
		"message": "product is referenced by orders",
		"details": map[string]any{"referenceCount": float64(2)},
	}, body["error"])
	require.Equal(t, map[string]any{"requestId": "req-1"}, body["meta"])
}

func TestBuildErrorHidesUnknownErrors(t *testing.T) {
	c, rec := newContext()

	require.NoError(t, New(c).WithError(errors.New("pq: connection refused")).Build())
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "internal", errBody["kind"])
	require.NotContains(t, errBody["message"], "connection refused")
}
