package seed

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/db"
	"github.com/albapepper/cricket-livestats/internal/provider"
)

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
// Team lookups and etl_state access run the statements db.New prepares, so
// q must come from a db.Pool or a transaction begun on one.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open a transaction. Both the pool and a pgx.Tx
// qualify; beginning on a Tx opens a savepoint.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// --------------------------------------------------------------------------
// Dimensions
// --------------------------------------------------------------------------

// UpsertTeam writes a canonical team to the teams table.
func UpsertTeam(ctx context.Context, q Querier, team provider.Team) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.TeamsTable+` (team_id, name, short_name, country)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (team_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, `+config.TeamsTable+`.name),
			short_name = COALESCE(EXCLUDED.short_name, `+config.TeamsTable+`.short_name),
			country = COALESCE(EXCLUDED.country, `+config.TeamsTable+`.country),
			updated_at = NOW()`,
		team.ID, nilEmpty(team.Name), nilEmpty(team.ShortName), nilEmpty(team.Country),
	)
	return err
}

// UpsertPlayer writes a canonical player. A non-null team replaces the
// stored one, so affiliation follows the most recent roster seen.
func UpsertPlayer(ctx context.Context, q Querier, player provider.Player) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.PlayersTable+` (
			player_id, name, role, bat_style, bowl_style, team_id, country
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (player_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, `+config.PlayersTable+`.name),
			role = COALESCE(EXCLUDED.role, `+config.PlayersTable+`.role),
			bat_style = COALESCE(EXCLUDED.bat_style, `+config.PlayersTable+`.bat_style),
			bowl_style = COALESCE(EXCLUDED.bowl_style, `+config.PlayersTable+`.bowl_style),
			team_id = COALESCE(EXCLUDED.team_id, `+config.PlayersTable+`.team_id),
			country = COALESCE(EXCLUDED.country, `+config.PlayersTable+`.country),
			updated_at = NOW()`,
		player.ID, nilEmpty(player.Name), nilEmpty(player.Role),
		nilEmpty(player.BattingStyle), nilEmpty(player.BowlingStyle),
		player.TeamID, nilEmpty(player.Country),
	)
	return err
}

// EnsurePlayer inserts a stub for a player referenced by a scorecard but not
// yet known. Existing rows are left untouched.
func EnsurePlayer(ctx context.Context, q Querier, id int64, name string) error {
	if name == "" {
		name = fmt.Sprintf("Player %d", id)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.PlayersTable+` (player_id, name)
		VALUES ($1,$2)
		ON CONFLICT (player_id) DO NOTHING`,
		id, name,
	)
	return err
}

// UpsertSeries writes a series. Fields the payload left empty keep their
// stored values.
func UpsertSeries(ctx context.Context, q Querier, s provider.Series) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.SeriesTable+` (
			series_id, name, host_country, match_type, start_date, end_date, total_matches
		) VALUES ($1,$2,$3,$4,$5::date,$6::date,$7)
		ON CONFLICT (series_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, `+config.SeriesTable+`.name),
			host_country = COALESCE(EXCLUDED.host_country, `+config.SeriesTable+`.host_country),
			match_type = COALESCE(EXCLUDED.match_type, `+config.SeriesTable+`.match_type),
			start_date = COALESCE(EXCLUDED.start_date, `+config.SeriesTable+`.start_date),
			end_date = COALESCE(EXCLUDED.end_date, `+config.SeriesTable+`.end_date),
			total_matches = COALESCE(EXCLUDED.total_matches, `+config.SeriesTable+`.total_matches),
			updated_at = NOW()`,
		s.ID, nilEmpty(s.Name), nilEmpty(s.HostCountry), nilEmpty(provider.Truncate(s.MatchType, 20)),
		nilEmpty(s.StartDate), nilEmpty(s.EndDate), s.TotalMatches,
	)
	return err
}

// EnsureSeries inserts a series stub so a match's foreign key holds.
func EnsureSeries(ctx context.Context, q Querier, id int64, name string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.SeriesTable+` (series_id, name)
		VALUES ($1,$2)
		ON CONFLICT (series_id) DO NOTHING`,
		id, nilEmpty(name),
	)
	return err
}

// UpsertVenue gets or creates a venue by (name, city, country) and returns
// its id. Capacity only ever grows: a smaller or missing value never
// replaces a stored one.
func UpsertVenue(ctx context.Context, q Querier, v provider.Venue) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO `+config.VenuesTable+` (name, city, country, capacity)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (name, city, country) DO UPDATE SET
			capacity = GREATEST(`+config.VenuesTable+`.capacity, EXCLUDED.capacity)
		RETURNING venue_id`,
		provider.Truncate(v.Name, 150), provider.Truncate(v.City, 100),
		provider.Truncate(v.Country, 80), v.Capacity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert venue %q: %w", v.Name, err)
	}
	return id, nil
}

// UpsertMatch writes a match row. Columns the payload did not supply keep
// their stored values; supplied ones overwrite.
func UpsertMatch(ctx context.Context, q Querier, m provider.Match, venueID *int64) error {
	var team1, team2 *int64
	if m.Team1 != nil {
		team1 = &m.Team1.ID
	}
	if m.Team2 != nil {
		team2 = &m.Team2.ID
	}
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.MatchesTable+` (
			match_id, series_id, team1_id, team2_id, match_date, venue_id,
			winner_id, win_margin, victory_type, toss_winner_id, toss_decision,
			match_format, description
		) VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (match_id) DO UPDATE SET
			series_id = COALESCE(EXCLUDED.series_id, `+config.MatchesTable+`.series_id),
			team1_id = COALESCE(EXCLUDED.team1_id, `+config.MatchesTable+`.team1_id),
			team2_id = COALESCE(EXCLUDED.team2_id, `+config.MatchesTable+`.team2_id),
			match_date = COALESCE(EXCLUDED.match_date, `+config.MatchesTable+`.match_date),
			venue_id = COALESCE(EXCLUDED.venue_id, `+config.MatchesTable+`.venue_id),
			winner_id = COALESCE(EXCLUDED.winner_id, `+config.MatchesTable+`.winner_id),
			win_margin = COALESCE(EXCLUDED.win_margin, `+config.MatchesTable+`.win_margin),
			victory_type = COALESCE(EXCLUDED.victory_type, `+config.MatchesTable+`.victory_type),
			toss_winner_id = COALESCE(EXCLUDED.toss_winner_id, `+config.MatchesTable+`.toss_winner_id),
			toss_decision = COALESCE(EXCLUDED.toss_decision, `+config.MatchesTable+`.toss_decision),
			match_format = COALESCE(EXCLUDED.match_format, `+config.MatchesTable+`.match_format),
			description = COALESCE(EXCLUDED.description, `+config.MatchesTable+`.description),
			updated_at = NOW()`,
		m.ID, m.SeriesID, team1, team2, nilEmpty(m.Date), venueID,
		m.WinnerID, nilEmpty(provider.Truncate(m.WinMargin, 50)),
		nilEmpty(provider.Truncate(m.VictoryType, 50)), m.TossWinnerID,
		nilEmpty(provider.Truncate(m.TossDecision, 20)),
		nilEmpty(provider.Truncate(m.Format, 20)), nilEmpty(provider.Truncate(m.Description, 255)),
	)
	return err
}

// --------------------------------------------------------------------------
// Facts
// --------------------------------------------------------------------------

// UpsertBatting writes one batter's innings.
func UpsertBatting(ctx context.Context, q Querier, matchID int64, b provider.BattingEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.BattingTable+` (
			match_id, player_id, team_id, runs, balls, fours, sixes,
			strike_rate, innings_no, batting_pos, is_out
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (match_id, player_id, innings_no) DO UPDATE SET
			team_id = COALESCE(EXCLUDED.team_id, `+config.BattingTable+`.team_id),
			runs = EXCLUDED.runs,
			balls = EXCLUDED.balls,
			fours = EXCLUDED.fours,
			sixes = EXCLUDED.sixes,
			strike_rate = EXCLUDED.strike_rate,
			batting_pos = EXCLUDED.batting_pos,
			is_out = EXCLUDED.is_out`,
		matchID, b.PlayerID, b.TeamID, b.Runs, b.Balls, b.Fours, b.Sixes,
		b.StrikeRate, b.Innings, b.Position, b.IsOut,
	)
	return err
}

// UpsertBowling writes one bowler's spell.
func UpsertBowling(ctx context.Context, q Querier, matchID int64, b provider.BowlingEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.BowlingTable+` (
			match_id, player_id, team_id, overs, maidens, runs, wickets,
			economy, innings_no
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (match_id, player_id, innings_no) DO UPDATE SET
			team_id = COALESCE(EXCLUDED.team_id, `+config.BowlingTable+`.team_id),
			overs = EXCLUDED.overs,
			maidens = EXCLUDED.maidens,
			runs = EXCLUDED.runs,
			wickets = EXCLUDED.wickets,
			economy = EXCLUDED.economy`,
		matchID, b.PlayerID, b.TeamID, b.Overs, b.Maidens, b.Runs, b.Wickets,
		b.Economy, b.Innings,
	)
	return err
}

// UpsertPartnership writes one batting pair's stand.
func UpsertPartnership(ctx context.Context, q Querier, matchID int64, p provider.PartnershipEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.PartnershipsTable+` (
			match_id, innings_no, player1_id, player2_id, runs, balls, pair_pos_diff
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (match_id, innings_no, player1_id, player2_id) DO UPDATE SET
			runs = EXCLUDED.runs,
			balls = EXCLUDED.balls,
			pair_pos_diff = COALESCE(EXCLUDED.pair_pos_diff, `+config.PartnershipsTable+`.pair_pos_diff)`,
		matchID, p.Innings, p.Player1ID, p.Player2ID, p.Runs, p.Balls, p.PosDiff,
	)
	return err
}

// UpsertFielding writes a player's match fielding totals.
func UpsertFielding(ctx context.Context, q Querier, matchID int64, f provider.FieldingEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO `+config.FieldingTable+` (match_id, player_id, catches, stumpings)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			catches = EXCLUDED.catches,
			stumpings = EXCLUDED.stumpings`,
		matchID, f.PlayerID, f.Catches, f.Stumpings,
	)
	return err
}

// --------------------------------------------------------------------------
// Lookups and state
// --------------------------------------------------------------------------

// ResolveTeamID finds a team by exact name or short name. It returns nil
// when nothing matches.
func ResolveTeamID(ctx context.Context, q Querier, name string) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	var id int64
	err := q.QueryRow(ctx, db.StmtResolveTeam, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve team %q: %w", name, err)
	}
	return &id, nil
}

// TeamIDs lists every stored team id.
func TeamIDs(ctx context.Context, q Querier) ([]int64, error) {
	rows, err := q.Query(ctx, db.StmtTeamIDs)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return ids, nil
}

// SetState records a key in etl_state.
func SetState(ctx context.Context, q Querier, key, value string) error {
	_, err := q.Exec(ctx, db.StmtSetState, key, value)
	return err
}

// StateEntry is one etl_state row.
type StateEntry struct {
	Key       string `json:"key" db:"k"`
	Value     string `json:"value" db:"v"`
	UpdatedAt string `json:"updated_at" db:"updated_at"`
}

// LoadState returns every etl_state row ordered by key.
func LoadState(ctx context.Context, q Querier) ([]StateEntry, error) {
	rows, err := q.Query(ctx, db.StmtLoadState)
	if err != nil {
		return nil, fmt.Errorf("load etl state: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[StateEntry])
	if err != nil {
		return nil, fmt.Errorf("load etl state: %w", err)
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// nilEmpty returns nil for empty strings (maps to SQL NULL).
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
