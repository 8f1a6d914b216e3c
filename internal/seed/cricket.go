package seed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/albapepper/cricket-livestats/internal/metrics"
	"github.com/albapepper/cricket-livestats/internal/provider"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
)

// Routine names, used in logs, metrics, and etl_state keys.
const (
	RoutineTeams    = "teams_players"
	RoutineSeries   = "series_deep"
	RoutineBackfill = "backfill"
	RoutineRefresh  = "refresh"
)

// ErrRunInProgress is returned when a routine starts while another is
// running on the same Runner.
var ErrRunInProgress = errors.New("seed: an ETL run is already in progress")

// errBatchStopped unwinds the current batch after a rate-limited response.
var errBatchStopped = errors.New("seed: batch stopped")

// Source is the provider surface the routines need. *cricbuzz.Client
// satisfies it.
type Source interface {
	Teams(ctx context.Context) ([]provider.Team, error)
	Roster(ctx context.Context, teamID int64) ([]provider.Player, error)
	PlayerProfile(ctx context.Context, playerID int64) (provider.Player, error)
	SeriesListPage(ctx context.Context, archived bool, cursor string) (cricbuzz.SeriesPage, error)
	SeriesDetail(ctx context.Context, seriesID int64) (cricbuzz.SeriesDetail, error)
	Matches(ctx context.Context, kind cricbuzz.ListKind, cursor string) (cricbuzz.MatchListing, error)
	MatchCenter(ctx context.Context, matchID int64) (provider.MatchResult, error)
	Scorecard(ctx context.Context, matchID int64) (provider.Scorecard, error)
	Venue(ctx context.Context, venueID int64) (provider.Venue, error)
	Limiter() *cricbuzz.Limiter
}

// Runner executes ETL routines one at a time.
type Runner struct {
	db      DB
	src     Source
	logger  *slog.Logger
	running sync.Mutex
}

// NewRunner creates a Runner writing through db and fetching from src.
func NewRunner(db DB, src Source, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, src: src, logger: logger}
}

// Busy reports whether a routine is currently running.
func (r *Runner) Busy() bool {
	if r.running.TryLock() {
		r.running.Unlock()
		return false
	}
	return true
}

// run wraps a routine with the single-run guard, per-run call accounting,
// etl_state bookkeeping, and metrics.
func (r *Runner) run(ctx context.Context, routine string, fn func(ctx context.Context, res *SeedResult) error) SeedResult {
	res := NewResult(routine)
	if !r.running.TryLock() {
		res.abort(ErrRunInProgress, "wait for the current run to finish")
		res.FinishedAt = time.Now().UTC()
		return res
	}
	defer r.running.Unlock()

	limiter := r.src.Limiter()
	ctx = limiter.StartRun(ctx)

	r.logger.Info("ETL run starting", "routine", routine, "run_id", res.RunID)
	r.saveState(ctx, routine+".started_at", res.StartedAt.Format(time.RFC3339))

	if err := fn(ctx, &res); err != nil && !errors.Is(err, errBatchStopped) {
		res.abort(err, cricbuzz.Hint(err))
	}

	res.APICalls = limiter.Usage().RunUsed
	res.FinishedAt = time.Now().UTC()
	metrics.RunDuration.WithLabelValues(routine, res.Status()).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	// State writes use a fresh context so a canceled run still records how
	// it ended.
	stateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	r.saveState(stateCtx, routine+".finished_at", res.FinishedAt.Format(time.RFC3339))
	r.saveState(stateCtx, routine+".run_id", res.RunID.String())
	r.saveState(stateCtx, routine+".summary", res.Summary())

	if res.Aborted != "" {
		r.logger.Error("ETL run aborted", "routine", routine, "run_id", res.RunID,
			"error", res.Aborted, "hint", res.Hint, "summary", res.Summary())
	} else {
		r.logger.Info("ETL run complete", "routine", routine, "run_id", res.RunID, "summary", res.Summary())
	}
	return res
}

func (r *Runner) saveState(ctx context.Context, key, value string) {
	if err := SetState(ctx, r.db, key, value); err != nil {
		r.logger.Warn("Failed to record ETL state", "key", key, "error", err)
	}
}

// triage records a fetch failure and decides how far it propagates. Fatal
// errors and cancellation abort the run, a rate-limited response stops the
// current batch, and anything else skips just this entity.
func (r *Runner) triage(res *SeedResult, entity string, key any, err error) error {
	switch cricbuzz.KindOf(err) {
	case cricbuzz.KindOK:
		return nil
	case cricbuzz.KindFatal, cricbuzz.KindCanceled:
		return err
	case cricbuzz.KindRateLimited:
		res.AddErrorf("%s %v: %v (%s)", entity, key, err, cricbuzz.Hint(err))
		r.logger.Warn("Rate limited, stopping batch", "entity", entity, "key", key)
		return errors.Mark(err, errBatchStopped)
	default:
		res.AddSkip(entity, key, err)
		metrics.RecordsTotal.WithLabelValues(entity, "skipped").Inc()
		r.logger.Warn("Skipping entity", "entity", entity, "key", key, "error", err)
		return nil
	}
}

// --------------------------------------------------------------------------
// Teams and players
// --------------------------------------------------------------------------

// LoadTeamsAndPlayers loads international teams and every stored team's
// roster, fetching a player's profile only when the roster entry is missing
// role, styles, or country.
func (r *Runner) LoadTeamsAndPlayers(ctx context.Context) SeedResult {
	return r.run(ctx, RoutineTeams, r.loadTeamsAndPlayers)
}

func (r *Runner) loadTeamsAndPlayers(ctx context.Context, res *SeedResult) error {
	// 1. Teams
	teams, err := r.src.Teams(ctx)
	if err != nil {
		return r.triage(res, "teams", "international", err)
	}
	for _, t := range teams {
		if err := UpsertTeam(ctx, r.db, t); err != nil {
			res.AddSkip("team", t.ID, err)
			continue
		}
		res.TeamsUpserted++
		metrics.RecordsTotal.WithLabelValues("team", "upserted").Inc()
	}
	r.logger.Info("Teams done", "count", res.TeamsUpserted)

	// 2. Rosters, for every team now in the store
	teamIDs, err := TeamIDs(ctx, r.db)
	if err != nil {
		return err
	}
	for _, teamID := range teamIDs {
		players, err := r.src.Roster(ctx, teamID)
		if err != nil {
			if err := r.triage(res, "roster", teamID, err); err != nil {
				return err
			}
			continue
		}
		for _, p := range players {
			if p.NeedsProfile() {
				prof, err := r.src.PlayerProfile(ctx, p.ID)
				if err != nil {
					if err := r.triage(res, "player_profile", p.ID, err); err != nil {
						return err
					}
				} else {
					p.Merge(prof)
				}
			}
			if err := UpsertPlayer(ctx, r.db, p); err != nil {
				res.AddSkip("player", p.ID, err)
				continue
			}
			res.PlayersUpserted++
			metrics.RecordsTotal.WithLabelValues("player", "upserted").Inc()
		}
		r.logger.Info("Roster done", "team_id", teamID, "players", len(players))
	}
	return nil
}

// --------------------------------------------------------------------------
// Series and matches
// --------------------------------------------------------------------------

// LoadSeriesDeep loads one series with every match and scorecard in it.
func (r *Runner) LoadSeriesDeep(ctx context.Context, seriesID int64) SeedResult {
	return r.run(ctx, RoutineSeries, func(ctx context.Context, res *SeedResult) error {
		return r.loadSeries(ctx, res, seriesID)
	})
}

func (r *Runner) loadSeries(ctx context.Context, res *SeedResult, seriesID int64) error {
	detail, err := r.src.SeriesDetail(ctx, seriesID)
	if err != nil {
		return r.triage(res, "series", seriesID, err)
	}
	if err := UpsertSeries(ctx, r.db, detail.Series); err != nil {
		res.AddSkip("series", seriesID, err)
		return nil
	}
	res.SeriesUpserted++
	metrics.RecordsTotal.WithLabelValues("series", "upserted").Inc()

	r.logger.Info("Loading series", "series_id", seriesID, "name", detail.Series.Name, "matches", len(detail.Matches))
	for _, m := range detail.Matches {
		if err := r.loadMatch(ctx, res, m); err != nil {
			return err
		}
	}
	return nil
}

// loadMatch writes a match's basic row, backfilling result fields from the
// match center when the listing left any out, then loads its scorecard.
func (r *Runner) loadMatch(ctx context.Context, res *SeedResult, m provider.Match) error {
	if m.NeedsResult() {
		mc, err := r.src.MatchCenter(ctx, m.ID)
		if err != nil {
			if err := r.triage(res, "match_center", m.ID, err); err != nil {
				return err
			}
		} else {
			m.Apply(mc)
		}
	}
	if m.Venue != nil && m.Venue.NeedsDetail() {
		v := *m.Venue
		if err := r.enrichVenue(ctx, res, &v); err != nil {
			return err
		}
		m.Venue = &v
	}
	if err := r.upsertMatchBasic(ctx, m); err != nil {
		res.AddSkip("match", m.ID, err)
		r.logger.Warn("Match upsert failed", "match_id", m.ID, "error", err)
		return nil
	}
	res.MatchesUpserted++
	metrics.RecordsTotal.WithLabelValues("match", "upserted").Inc()

	sc, err := r.src.Scorecard(ctx, m.ID)
	if err != nil {
		return r.triage(res, "scorecard", m.ID, err)
	}
	if err := r.writeScorecard(ctx, res, sc); err != nil {
		res.AddSkip("scorecard", m.ID, err)
		r.logger.Warn("Scorecard write rolled back", "match_id", m.ID, "error", err)
	}
	return nil
}

// enrichVenue fills capacity and country from the venue endpoint. Each venue
// is fetched at most once per run; a failed lookup is cached too, so a venue
// the provider cannot describe costs one call.
func (r *Runner) enrichVenue(ctx context.Context, res *SeedResult, v *provider.Venue) error {
	if d, ok := res.venues[v.ID]; ok {
		v.Merge(d)
		return nil
	}
	d, err := r.src.Venue(ctx, v.ID)
	if err != nil {
		if err := r.triage(res, "venue", v.ID, err); err != nil {
			return err
		}
		d = provider.Venue{}
	}
	if res.venues == nil {
		res.venues = map[int64]provider.Venue{}
	}
	res.venues[v.ID] = d
	v.Merge(d)
	return nil
}

func (r *Runner) upsertMatchBasic(ctx context.Context, m provider.Match) error {
	for _, t := range []*provider.Team{m.Team1, m.Team2} {
		if t == nil {
			continue
		}
		if err := UpsertTeam(ctx, r.db, *t); err != nil {
			return errors.Wrapf(err, "team %d", t.ID)
		}
	}
	if m.SeriesID != nil {
		if err := EnsureSeries(ctx, r.db, *m.SeriesID, m.SeriesName); err != nil {
			return errors.Wrapf(err, "series %d", *m.SeriesID)
		}
	}
	var venueID *int64
	if m.Venue != nil {
		id, err := UpsertVenue(ctx, r.db, *m.Venue)
		if err != nil {
			return err
		}
		venueID = &id
	}
	return UpsertMatch(ctx, r.db, m, venueID)
}

// writeScorecard writes every fact row of one match in a single
// transaction. Each row runs in its own savepoint: a bad row is rolled back
// and skipped while the rest of the match commits.
func (r *Runner) writeScorecard(ctx context.Context, res *SeedResult, sc provider.Scorecard) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin scorecard tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var counts SeedResult
	key := func(parts ...int64) string {
		s := strconv.FormatInt(sc.MatchID, 10)
		for _, p := range parts {
			s += "/" + strconv.FormatInt(p, 10)
		}
		return s
	}

	for _, b := range sc.Batting {
		err := savepoint(ctx, tx, func(q pgx.Tx) error {
			if err := EnsurePlayer(ctx, q, b.PlayerID, b.PlayerName); err != nil {
				return err
			}
			if b.TeamID == nil {
				id, err := ResolveTeamID(ctx, q, b.TeamName)
				if err != nil {
					return err
				}
				b.TeamID = id
			}
			return UpsertBatting(ctx, q, sc.MatchID, b)
		})
		if err != nil {
			counts.AddSkip("batting", key(int64(b.Innings), b.PlayerID), err)
			continue
		}
		counts.BattingUpserted++
	}

	for _, b := range sc.Bowling {
		err := savepoint(ctx, tx, func(q pgx.Tx) error {
			if err := EnsurePlayer(ctx, q, b.PlayerID, b.PlayerName); err != nil {
				return err
			}
			if b.TeamID == nil {
				id, err := ResolveTeamID(ctx, q, b.TeamName)
				if err != nil {
					return err
				}
				b.TeamID = id
			}
			return UpsertBowling(ctx, q, sc.MatchID, b)
		})
		if err != nil {
			counts.AddSkip("bowling", key(int64(b.Innings), b.PlayerID), err)
			continue
		}
		counts.BowlingUpserted++
	}

	for _, p := range sc.Partnerships {
		err := savepoint(ctx, tx, func(q pgx.Tx) error {
			return UpsertPartnership(ctx, q, sc.MatchID, p)
		})
		if err != nil {
			counts.AddSkip("partnership", key(int64(p.Innings), p.Player1ID, p.Player2ID), err)
			continue
		}
		counts.PartnershipsUpserted++
	}

	for _, f := range sc.Fielding {
		err := savepoint(ctx, tx, func(q pgx.Tx) error {
			if err := EnsurePlayer(ctx, q, f.PlayerID, f.PlayerName); err != nil {
				return err
			}
			return UpsertFielding(ctx, q, sc.MatchID, f)
		})
		if err != nil {
			counts.AddSkip("fielding", key(f.PlayerID), err)
			continue
		}
		counts.FieldingUpserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit scorecard tx")
	}
	res.Add(counts)
	metrics.RecordsTotal.WithLabelValues("batting", "upserted").Add(float64(counts.BattingUpserted))
	metrics.RecordsTotal.WithLabelValues("bowling", "upserted").Add(float64(counts.BowlingUpserted))
	metrics.RecordsTotal.WithLabelValues("partnership", "upserted").Add(float64(counts.PartnershipsUpserted))
	metrics.RecordsTotal.WithLabelValues("fielding", "upserted").Add(float64(counts.FieldingUpserted))
	r.logger.Info("Scorecard loaded", "match_id", sc.MatchID, "innings", sc.Innings,
		"batting", counts.BattingUpserted, "bowling", counts.BowlingUpserted,
		"partnerships", counts.PartnershipsUpserted, "fielding", counts.FieldingUpserted,
		"skips", len(counts.Skips))
	return nil
}

// savepoint runs fn inside a nested transaction on tx.
func savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// --------------------------------------------------------------------------
// Discovery and refresh
// --------------------------------------------------------------------------

// Backfill pages through the current and then the archived international
// series listings, deep-loading every series that started in fromYear or
// later. Each listing stops at a missing cursor, an empty page, or after
// maxPages pages.
func (r *Runner) Backfill(ctx context.Context, fromYear, maxPages int) SeedResult {
	return r.run(ctx, RoutineBackfill, func(ctx context.Context, res *SeedResult) error {
		for _, archived := range []bool{false, true} {
			if err := r.backfillListing(ctx, res, archived, fromYear, maxPages); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) backfillListing(ctx context.Context, res *SeedResult, archived bool, fromYear, maxPages int) error {
	listing := "current"
	if archived {
		listing = "archive"
	}
	cursor := ""
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		p, err := r.src.SeriesListPage(ctx, archived, cursor)
		if err != nil {
			return r.triage(res, "series_page", listing+"#"+strconv.Itoa(page), err)
		}
		if len(p.Series) == 0 {
			break
		}
		r.logger.Info("Series page", "listing", listing, "page", page, "series", len(p.Series))

		for _, s := range p.Series {
			if y := s.StartYear(); y != 0 && y < fromYear {
				continue
			}
			if err := UpsertSeries(ctx, r.db, s); err != nil {
				res.AddSkip("series", s.ID, err)
				continue
			}
			if err := r.loadSeries(ctx, res, s.ID); err != nil {
				return err
			}
		}
		if p.Cursor == "" || p.Cursor == cursor {
			break
		}
		cursor = p.Cursor
	}
	return nil
}

// IncrementalRefresh walks the recent-matches listing, upserting series and
// match stubs and loading each match's scorecard.
func (r *Runner) IncrementalRefresh(ctx context.Context, maxPages int) SeedResult {
	return r.run(ctx, RoutineRefresh, func(ctx context.Context, res *SeedResult) error {
		cursor := ""
		for page := 1; maxPages <= 0 || page <= maxPages; page++ {
			l, err := r.src.Matches(ctx, cricbuzz.ListRecent, cursor)
			if err != nil {
				return r.triage(res, "recent_page", page, err)
			}
			if len(l.Matches) == 0 && len(l.Series) == 0 {
				break
			}
			for _, s := range l.Series {
				if err := EnsureSeries(ctx, r.db, s.ID, s.Name); err != nil {
					res.AddSkip("series", s.ID, err)
				}
			}
			for _, m := range l.Matches {
				if err := r.loadMatch(ctx, res, m.Match); err != nil {
					return err
				}
			}
			if l.Cursor == "" || l.Cursor == cursor {
				break
			}
			cursor = l.Cursor
		}
		return nil
	})
}
