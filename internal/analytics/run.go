package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the view layer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result is the output of one analytics query.
type Result struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	SQL     string           `json:"sql"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// CreateViews drops and recreates every view under policy p in a single
// transaction, so readers see either the old set or the new one.
func CreateViews(ctx context.Context, db DB, p Policy, logger *slog.Logger) error {
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for i := len(registry) - 1; i >= 0; i-- {
			if _, err := tx.Exec(ctx, "DROP VIEW IF EXISTS "+registry[i].View); err != nil {
				return fmt.Errorf("drop %s: %w", registry[i].View, err)
			}
		}
		for _, q := range registry {
			if _, err := tx.Exec(ctx, q.Definition(p)); err != nil {
				return fmt.Errorf("create %s: %w", q.View, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create views: %w", err)
	}
	logger.Info("Analytics views created", "count", len(registry))
	return nil
}

// Run executes the query named id and returns its rows keyed by column.
func Run(ctx context.Context, db DB, id string) (*Result, error) {
	q, ok := Lookup(id)
	if !ok {
		return nil, fmt.Errorf("unknown query %q", id)
	}

	rows, err := db.Query(ctx, q.SQL())
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", q.ID, err)
	}
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	data, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", q.ID, err)
	}
	if data == nil {
		data = []map[string]any{}
	}

	return &Result{ID: q.ID, Title: q.Title, SQL: q.SQL(), Columns: cols, Rows: data}, nil
}
