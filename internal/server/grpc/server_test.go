package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

func TestToStatus(t *testing.T) {
	require.NoError(t, toStatus(nil))

	st := status.Convert(toStatus(errorbank.InvalidTransition("invalid status transition NEW -> ARCHIVED")))
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Equal(t, "invalid status transition NEW -> ARCHIVED", st.Message())

	st = status.Convert(toStatus(errorbank.NotFound("order not found")))
	require.Equal(t, codes.NotFound, st.Code())

	st = status.Convert(toStatus(errors.New("db exploded")))
	require.Equal(t, codes.Internal, st.Code())
	require.NotContains(t, st.Message(), "db exploded")

	original := status.Error(codes.Unavailable, "draining")
	require.Equal(t, original, toStatus(original))
}

func TestHealthService(t *testing.T) {
	var cfg config.Config
	cfg.Observability.ServiceName = "orderdesk"
	hs := NewHealth(cfg)
	server := NewServer(zap.NewNop(), hs)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "orderdesk"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	hs.Shutdown()
	resp, err = healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestStopWithoutCallsReturns(t *testing.T) {
	server := NewServer(zap.NewNop(), NewHealth(config.Config{}))
	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()

	require.NoError(t, stop(context.Background(), server))
}
