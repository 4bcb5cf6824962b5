package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusCodeByKind(t *testing.T) {
	cases := []struct {
		err  *AppError
		http int
		grpc codes.Code
	}{
		{BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{InvalidTransition("x"), http.StatusBadRequest, codes.FailedPrecondition},
		{Referenced("x"), http.StatusBadRequest, codes.FailedPrecondition},
		{Unauthorized("x"), http.StatusUnauthorized, codes.Unauthenticated},
		{Forbidden("x"), http.StatusForbidden, codes.PermissionDenied},
		{Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{NotFound("x"), http.StatusNotFound, codes.NotFound},
		{New(KindUnprocessableEntity, "x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			require.Equal(t, tc.http, tc.err.StatusCode())
			require.Equal(t, tc.grpc, tc.err.GRPCCode())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := From(cause)
	require.Equal(t, KindInternal, appErr.Kind())
	require.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("outer: %w", NotFound("order not found"))
	require.Equal(t, KindNotFound, From(wrapped).Kind())
	require.True(t, IsKind(wrapped, KindNotFound))
	require.False(t, IsKind(cause, KindNotFound))
	require.Nil(t, From(nil))
}

func TestDetailsMerge(t *testing.T) {
	appErr := Referenced("in use",
		WithDetail("referenceCount", 3),
		WithDetails(map[string]any{"productId": "p1"}),
	)
	require.Equal(t, map[string]any{"referenceCount": 3, "productId": "p1"}, appErr.Details())
	require.Equal(t, "in use", appErr.Error())
}

func TestKindForStatus(t *testing.T) {
	require.Equal(t, KindNotFound, KindForStatus(http.StatusNotFound))
	require.Equal(t, KindNotFound, KindForStatus(http.StatusMethodNotAllowed))
	require.Equal(t, KindUnauthorized, KindForStatus(http.StatusUnauthorized))
	require.Equal(t, KindUnprocessableEntity, KindForStatus(http.StatusUnprocessableEntity))
	require.Equal(t, KindBadRequest, KindForStatus(http.StatusTooManyRequests))
	require.Equal(t, KindInternal, KindForStatus(http.StatusBadGateway))
}

func TestNilAndUnknownKindsAreInternal(t *testing.T) {
	var nilErr *AppError
	require.Equal(t, http.StatusInternalServerError, nilErr.StatusCode())
	require.Equal(t, codes.Internal, nilErr.GRPCCode())
	require.Equal(t, http.StatusInternalServerError, New(Kind("mystery"), "").StatusCode())
}
