package db

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/schema"
)

func TestStatementsAreRegistered(t *testing.T) {
	for _, name := range []string{StmtHealthCheck, StmtResolveTeam, StmtTeamIDs, StmtSetState, StmtLoadState} {
		assert.NotEmpty(t, Statements[name], name)
	}
	assert.Len(t, Statements, 5)
}

func TestNewPreparesStatements(t *testing.T) {
	url := os.Getenv("CRICKET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRICKET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := &config.Config{DatabaseURL: url, DBPoolMaxConns: 2}
	require.NoError(t, schema.Migrate(ctx, cfg.MigrationURL(), slog.New(slog.NewTextHandler(io.Discard, nil))))

	pool, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.HealthCheck(ctx))

	_, err = pool.Exec(ctx, StmtSetState, "db_test.key", "v1")
	require.NoError(t, err)
	var v string
	require.NoError(t, pool.QueryRow(ctx, `SELECT v FROM `+config.StateTable+` WHERE k = 'db_test.key'`).Scan(&v))
	assert.Equal(t, "v1", v)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	rows, err := tx.Query(ctx, StmtTeamIDs)
	require.NoError(t, err, "prepared statements are usable inside a transaction")
	rows.Close()
}
