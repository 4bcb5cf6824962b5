package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database/dbtest"
	"github.com/Additional-Code/orderdesk/internal/migration"
)

func TestUpDownRoundTrip(t *testing.T) {
	ctx := context.Background()
	conns := dbtest.NewConnections(t)
	db := conns.Writer

	count := func(table string) int {
		n, err := db.NewSelect().
			TableExpr("sqlite_master").
			Where("type = 'table'").
			Where("name = ?", table).
			Count(ctx)
		require.NoError(t, err)
		return n
	}

	for _, table := range []string{"products", "orders", "order_items", "users"} {
		require.Equal(t, 1, count(table), table)
	}

	mig, err := migration.New(config.Config{Database: config.Database{Driver: "sqlite"}}, conns, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, mig.Up(ctx))
	version, err := mig.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, version)

	require.NoError(t, mig.Down(ctx, 1, false))
	require.Equal(t, 0, count("users"))
	require.Equal(t, 1, count("orders"))

	require.NoError(t, mig.Down(ctx, 0, true))
	for _, table := range []string{"products", "orders", "order_items"} {
		require.Equal(t, 0, count(table), table)
	}
	version, err = mig.Version(ctx)
	require.NoError(t, err)
	require.Zero(t, version)

	require.NoError(t, mig.Down(ctx, 2, false))

	require.NoError(t, mig.Up(ctx))
	require.Equal(t, 1, count("users"))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := migration.New(config.Config{Database: config.Database{Driver: "oracle"}}, nil, zap.NewNop())
	require.Error(t, err)
}
