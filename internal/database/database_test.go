package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

func TestOpenRejectsBadSettings(t *testing.T) {
	_, err := database.Open(config.Database{Driver: "oracle", WriterDSN: "x"}, nil)
	require.Error(t, err)

	_, err = database.Open(config.Database{Driver: "sqlite"}, nil)
	require.ErrorContains(t, err, "empty DSN")
}

func TestOpenSharesWriterWithoutReplica(t *testing.T) {
	conns, err := database.Open(config.Database{Driver: "sqlite", WriterDSN: ":memory:", MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	require.Same(t, conns.Writer, conns.Reader)

	require.NoError(t, conns.Ping(context.Background()))
	require.NoError(t, conns.Close())
}

func TestOpenSeparateReplica(t *testing.T) {
	dir := t.TempDir()
	conns, err := database.Open(config.Database{
		Driver:    "sqlite",
		WriterDSN: filepath.Join(dir, "writer.db"),
		ReaderDSN: filepath.Join(dir, "reader.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotSame(t, conns.Writer, conns.Reader)

	require.NoError(t, conns.Ping(context.Background()))
	require.NoError(t, conns.Close())
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	ctx := context.Background()
	conns, err := database.Open(config.Database{Driver: "sqlite", WriterDSN: ":memory:", MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	_, err = conns.Writer.ExecContext(ctx, "CREATE TABLE tags (name TEXT NOT NULL UNIQUE)")
	require.NoError(t, err)
	_, err = conns.Writer.ExecContext(ctx, "INSERT INTO tags (name) VALUES ('a')")
	require.NoError(t, err)

	_, err = conns.Writer.ExecContext(ctx, "INSERT INTO tags (name) VALUES ('a')")
	require.Error(t, err)
	require.True(t, database.IsUniqueViolation(err))

	require.False(t, database.IsUniqueViolation(nil))
	require.False(t, database.IsUniqueViolation(errors.New("connection reset")))
	require.False(t, database.SupportsRowLocks(conns.Writer))
}

func TestQueryHookLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hook := database.NewQueryHook(zap.New(core), 10*time.Millisecond)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	require.Zero(t, logs.Len())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now(), Err: sql.ErrNoRows})
	require.Zero(t, logs.Len())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT pg_sleep(1)", StartTime: time.Now().Add(-time.Second)})
	require.Equal(t, 1, logs.FilterMessage("slow query").Len())

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "DELETE FROM products", StartTime: time.Now(), Err: errors.New("boom")})
	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "DELETE", failed[0].ContextMap()["operation"])
}
