// Package db opens the Postgres pool shared by the ETL runner, the analytics
// views and the operator API.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/cricket-livestats/internal/config"
)

// Names of the statements prepared on every pooled connection. Pass one as
// the SQL argument of Query, QueryRow or Exec on the pool, or on a
// transaction begun from it.
const (
	StmtHealthCheck = "health_check"
	StmtResolveTeam = "resolve_team"
	StmtTeamIDs     = "team_ids"
	StmtSetState    = "set_state"
	StmtLoadState   = "load_state"
)

// Statements maps each prepared statement name to its SQL. The schema must
// be migrated before New is called, since every statement but the health
// check reads a migrated table.
var Statements = map[string]string{
	StmtHealthCheck: `SELECT 1`,

	// $1: team name or short name
	StmtResolveTeam: `
		SELECT team_id FROM ` + config.TeamsTable + `
		WHERE name = $1 OR short_name = $1
		ORDER BY team_id
		LIMIT 1`,

	StmtTeamIDs: `SELECT team_id FROM ` + config.TeamsTable + ` ORDER BY team_id`,

	// $1: key, $2: value
	StmtSetState: `
		INSERT INTO ` + config.StateTable + ` (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = NOW()`,

	StmtLoadState: `
		SELECT k, COALESCE(v, '') AS v,
		       to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') AS updated_at
		FROM ` + config.StateTable + `
		ORDER BY k`,
}

// Pool is the application's pgx pool.
type Pool struct {
	*pgxpool.Pool
}

// New connects a pool sized from cfg and prepares Statements on each
// connection.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.DBPoolMinConns > 0 {
		poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	}
	if cfg.DBPoolMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	}
	if cfg.DBPoolMaxLife > 0 {
		poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = prepare

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// HealthCheck verifies the database answers.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, StmtHealthCheck).Scan(&n)
}

func prepare(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %s (is the schema migrated?): %w", name, err)
		}
	}
	return nil
}
