// Command ingest is the cricket ETL CLI.
//
// Usage:
//
//	cricket-ingest schema
//	cricket-ingest teams
//	cricket-ingest series --id 8393
//	cricket-ingest backfill --from-year 2022 --max-pages 5
//	cricket-ingest refresh --max-pages 3
//	cricket-ingest views
//	cricket-ingest query Q21
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/albapepper/cricket-livestats/internal/analytics"
	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/db"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
	"github.com/albapepper/cricket-livestats/internal/schema"
	"github.com/albapepper/cricket-livestats/internal/seed"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	root := &cobra.Command{
		Use:           "cricket-ingest",
		Short:         "Cricbuzz ETL and analytics CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(schemaCmd())
	root.AddCommand(teamsCmd())
	root.AddCommand(seriesCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(viewsCmd())
	root.AddCommand(queryCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err, "hint", errors.FlattenHints(err))
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// schema / views / query
// --------------------------------------------------------------------------

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := schema.Migrate(cmd.Context(), cfg.MigrationURL(), logger); err != nil {
				return err
			}
			version, dirty, err := schema.Version(cfg.MigrationURL())
			if err != nil {
				return err
			}
			logger.Info("Schema ready", "version", version, "dirty", dirty)
			return nil
		},
	}
}

func viewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Drop and recreate the analytics views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				return analytics.CreateViews(ctx, pool, analytics.DefaultPolicy(), logger)
			})
		},
	}
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [id]",
		Short: "Run an analytics query, or list them when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, q := range analytics.Registry() {
					fmt.Fprintf(out, "%-4s %s\n", q.ID, q.Title)
				}
				return nil
			}
			if _, ok := analytics.Lookup(args[0]); !ok {
				return errors.WithHint(errors.Newf("unknown query %q", args[0]), "run `cricket-ingest query` to list them")
			}
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				res, err := analytics.Run(ctx, pool, args[0])
				if err != nil {
					return err
				}
				b, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			})
		},
	}
}

// --------------------------------------------------------------------------
// ETL routines
// --------------------------------------------------------------------------

func teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "Load international teams and their rosters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutine(false, func(ctx context.Context, r *seed.Runner) seed.SeedResult {
				return r.LoadTeamsAndPlayers(ctx)
			})
		},
	}
}

func seriesCmd() *cobra.Command {
	var seriesID int64
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Deep-load one series: matches, scorecards, and facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seriesID <= 0 {
				return fmt.Errorf("--id is required")
			}
			return runRoutine(true, func(ctx context.Context, r *seed.Runner) seed.SeedResult {
				return r.LoadSeriesDeep(ctx, seriesID)
			})
		},
	}
	cmd.Flags().Int64Var(&seriesID, "id", 0, "Cricbuzz series id")
	return cmd
}

func backfillCmd() *cobra.Command {
	var fromYear, maxPages int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Discover series from the current and archived listings and deep-load them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutine(true, func(ctx context.Context, r *seed.Runner) seed.SeedResult {
				return r.Backfill(ctx, fromYear, maxPages)
			})
		},
	}
	cmd.Flags().IntVar(&fromYear, "from-year", 2020, "Skip series that started before this year")
	cmd.Flags().IntVar(&maxPages, "max-pages", 5, "Page ceiling per listing (0 = no ceiling)")
	return cmd
}

func refreshCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Load scorecards of recently completed matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutine(true, func(ctx context.Context, r *seed.Runner) seed.SeedResult {
				return r.IncrementalRefresh(ctx, maxPages)
			})
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 3, "Page ceiling (0 = no ceiling)")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, nil
}

// runDB handles config loading, migrations, DB connection, and context
// cancellation. Migrating first lets the pool prepare its statements.
func runDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := schema.Migrate(ctx, cfg.MigrationURL(), logger); err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// runRoutine runs one ETL routine, logs its outcome, and rebuilds the views
// when rebuild is set and the run was not aborted.
func runRoutine(rebuild bool, fn func(ctx context.Context, r *seed.Runner) seed.SeedResult) error {
	return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		client := cricbuzz.NewClient(cricbuzz.ConfigFrom(cfg), logger)
		runner := seed.NewRunner(pool, client, logger)

		start := time.Now()
		res := fn(ctx, runner)
		logger.Info("ETL routine finished",
			"routine", res.Routine,
			"run_id", res.RunID,
			"status", res.Status(),
			"duration", time.Since(start).Round(time.Second),
			"summary", res.Summary())
		for _, s := range res.Skips {
			logger.Debug("skipped", "entity", s.Entity, "key", s.Key, "reason", s.Reason)
		}
		for _, e := range res.Errors {
			logger.Warn("batch error", "error", e)
		}
		for _, e := range client.Trace().Entries() {
			logger.Debug(e.String())
		}

		if err := res.Err(); err != nil {
			return err
		}
		if rebuild {
			return analytics.CreateViews(ctx, pool, analytics.DefaultPolicy(), logger)
		}
		return nil
	})
}
