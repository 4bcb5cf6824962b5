// Package dbtest opens throwaway sqlite databases with the application schema applied.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/migration"
)

// NewConnections returns migrated in-memory connections closed at test cleanup.
// Writer and reader share the single underlying connection.
func NewConnections(t *testing.T) *database.Connections {
	t.Helper()

	dbCfg := config.Database{
		Driver:       "sqlite",
		WriterDSN:    ":memory:",
		MaxIdleConns: 1,
	}
	conns, err := database.Open(dbCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.New(config.Config{Database: dbCfg}, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return conns
}
