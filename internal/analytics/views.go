package analytics

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is one named analytics query backed by a view.
type Query struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	View    string `json:"view"`
	OrderBy string `json:"order_by,omitempty"`

	body func(Policy) string
}

// SQL is the statement operators run against the view.
func (q Query) SQL() string {
	s := "SELECT * FROM " + q.View
	if q.OrderBy != "" {
		s += " ORDER BY " + q.OrderBy
	}
	return s
}

// Definition is the CREATE VIEW statement for q under policy p.
func (q Query) Definition(p Policy) string {
	return "CREATE VIEW " + q.View + " AS" + q.body(p)
}

// Registry returns the 25 queries in display order.
func Registry() []Query {
	return append([]Query(nil), registry...)
}

// Lookup finds a query by id. "Q7", "q7" and "7" all name the same query.
func Lookup(id string) (Query, bool) {
	id = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "Q")
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > len(registry) {
		return Query{}, false
	}
	return registry[n-1], true
}

func static(sql string) func(Policy) string {
	return func(Policy) string { return sql }
}

// dismissals counts innings where the batter was out.
const dismissals = `SUM(CASE WHEN b.is_out THEN 1 ELSE 0 END)`

var registry = []Query{
	{ID: "Q1", Title: "Players who represent India", View: "q1_players_india", body: static(`
	SELECT p.name AS full_name, p.role AS playing_role,
	       p.bat_style AS batting_style, p.bowl_style AS bowling_style
	FROM players p
	JOIN teams t ON p.team_id = t.team_id
	WHERE t.country = 'India'`)},

	{ID: "Q2", Title: "Matches in the last 30 days", View: "q2_matches_last_30_days", body: static(`
	SELECT m.match_id, m.description AS match_description,
	       t1.name AS team1, t2.name AS team2,
	       v.name AS venue_name, v.city AS venue_city,
	       m.match_date
	FROM matches m
	JOIN teams t1 ON m.team1_id = t1.team_id
	JOIN teams t2 ON m.team2_id = t2.team_id
	JOIN venues v ON m.venue_id = v.venue_id
	WHERE m.match_date >= CURRENT_DATE - INTERVAL '30 days'
	ORDER BY m.match_date DESC, m.match_id DESC`)},

	{ID: "Q3", Title: "Top 10 ODI run scorers", View: "q3_top10_odi_run_scorers", body: static(`
	SELECT p.player_id, p.name,
	       SUM(b.runs) AS total_runs,
	       ROUND(SUM(b.runs)::numeric / NULLIF(` + dismissals + `, 0), 2) AS batting_average,
	       SUM(CASE WHEN b.runs >= 100 THEN 1 ELSE 0 END) AS centuries
	FROM batting_stats b
	JOIN players p ON p.player_id = b.player_id
	JOIN matches m ON m.match_id = b.match_id
	WHERE m.match_format = 'ODI'
	GROUP BY p.player_id, p.name
	ORDER BY total_runs DESC
	LIMIT 10`)},

	{ID: "Q4", Title: "Venues with capacity > 50,000", View: "q4_big_venues", body: static(`
	SELECT name AS venue_name, city, country, capacity
	FROM venues
	WHERE capacity IS NOT NULL AND capacity > 50000
	ORDER BY capacity DESC, venue_name`)},

	{ID: "Q5", Title: "Matches won by each team", View: "q5_team_wins", body: static(`
	SELECT t.name AS team_name, COUNT(*) AS total_wins
	FROM matches m
	JOIN teams t ON m.winner_id = t.team_id
	GROUP BY t.team_id, t.name
	ORDER BY total_wins DESC, team_name`)},

	{ID: "Q6", Title: "Player counts by playing role", View: "q6_players_by_role", body: static(`
	SELECT COALESCE(role, 'Unknown') AS role, COUNT(*) AS player_count
	FROM players
	GROUP BY COALESCE(role, 'Unknown')
	ORDER BY player_count DESC, role`)},

	{ID: "Q7", Title: "Highest individual score per format", View: "q7_highest_individual_by_format", body: static(`
	SELECT m.match_format AS format, MAX(b.runs) AS highest_score
	FROM batting_stats b
	JOIN matches m ON m.match_id = b.match_id
	GROUP BY m.match_format`)},

	{ID: "Q8", Title: "Series started in 2024", View: "q8_series_started_2024", body: static(`
	SELECT name AS series_name, host_country, match_type, start_date, total_matches
	FROM series
	WHERE start_date >= DATE '2024-01-01' AND start_date < DATE '2025-01-01'
	ORDER BY start_date, series_name`)},

	{ID: "Q9", Title: "All-rounders (>1000 runs & >50 wkts)", View: "q9_all_rounders_1000_50", body: static(`
	WITH bat_totals AS (
	    SELECT player_id, SUM(runs) AS total_runs
	    FROM batting_stats
	    GROUP BY player_id
	),
	bowl_totals AS (
	    SELECT player_id, SUM(wickets) AS total_wickets
	    FROM bowling_stats
	    GROUP BY player_id
	)
	SELECT p.player_id, p.name,
	       COALESCE(b.total_runs, 0) AS total_runs,
	       COALESCE(w.total_wickets, 0) AS total_wickets
	FROM players p
	LEFT JOIN bat_totals b ON p.player_id = b.player_id
	LEFT JOIN bowl_totals w ON p.player_id = w.player_id
	WHERE COALESCE(b.total_runs, 0) > 1000
	  AND COALESCE(w.total_wickets, 0) > 50
	ORDER BY total_runs DESC, total_wickets DESC`)},

	{ID: "Q10", Title: "Last 20 completed matches", View: "q10_last20_completed", body: static(`
	SELECT m.match_id, m.description AS match_description,
	       t1.name AS team1, t2.name AS team2,
	       tw.name AS winner_team,
	       m.win_margin, m.victory_type,
	       v.name AS venue_name
	FROM matches m
	JOIN teams t1 ON m.team1_id = t1.team_id
	JOIN teams t2 ON m.team2_id = t2.team_id
	LEFT JOIN teams tw ON m.winner_id = tw.team_id
	JOIN venues v ON m.venue_id = v.venue_id
	WHERE m.victory_type IS NOT NULL
	ORDER BY m.match_date DESC NULLS LAST, m.match_id DESC
	LIMIT 20`)},

	{ID: "Q11", Title: "Player performance across formats", View: "q11_player_format_compare", body: static(`
	SELECT x.player_id, x.name,
	       SUM(CASE WHEN x.format = 'Test' THEN x.runs ELSE 0 END) AS runs_test,
	       SUM(CASE WHEN x.format = 'ODI' THEN x.runs ELSE 0 END) AS runs_odi,
	       SUM(CASE WHEN x.format = 'T20I' THEN x.runs ELSE 0 END) AS runs_t20i,
	       ROUND(SUM(x.runs)::numeric / NULLIF(SUM(x.dismissals), 0), 2) AS overall_bat_avg
	FROM (
	    SELECT p.player_id, p.name, m.match_format AS format,
	           SUM(b.runs) AS runs,
	           ` + dismissals + ` AS dismissals
	    FROM batting_stats b
	    JOIN matches m ON m.match_id = b.match_id
	    JOIN players p ON p.player_id = b.player_id
	    GROUP BY p.player_id, p.name, m.match_format
	) x
	GROUP BY x.player_id, x.name
	HAVING COUNT(CASE WHEN x.runs > 0 THEN x.format END) >= 2`)},

	{ID: "Q12", Title: "Team wins at home vs away", View: "q12_home_away_wins", body: static(`
	SELECT t.team_id, t.name,
	       SUM(CASE WHEN m.winner_id = t.team_id AND v.country = t.country THEN 1 ELSE 0 END) AS home_wins,
	       SUM(CASE WHEN m.winner_id = t.team_id AND v.country IS DISTINCT FROM t.country THEN 1 ELSE 0 END) AS away_wins
	FROM teams t
	JOIN matches m ON (m.team1_id = t.team_id OR m.team2_id = t.team_id)
	JOIN venues v ON m.venue_id = v.venue_id
	GROUP BY t.team_id, t.name`)},

	{ID: "Q13", Title: "Partnerships >= 100 runs (consecutive positions)", View: "q13_big_partnerships", body: static(`
	SELECT p1.name AS player1, p2.name AS player2,
	       pr.runs AS partnership_runs, pr.innings_no, pr.match_id
	FROM partnerships pr
	JOIN players p1 ON p1.player_id = pr.player1_id
	JOIN players p2 ON p2.player_id = pr.player2_id
	WHERE pr.runs >= 100 AND (pr.pair_pos_diff IS NULL OR pr.pair_pos_diff = 1)`)},

	{ID: "Q14", Title: "Bowling performance by venue", View: "q14_bowling_venue", body: static(`
	SELECT v.name AS venue_name, v.city, bw.player_id, p.name AS player_name,
	       COUNT(DISTINCT bw.match_id) AS matches_played,
	       SUM(bw.wickets) AS total_wickets,
	       ROUND((SUM(bw.runs) / NULLIF(SUM(bw.overs), 0))::numeric, 2) AS avg_economy
	FROM bowling_stats bw
	JOIN matches m ON m.match_id = bw.match_id
	JOIN venues v ON v.venue_id = m.venue_id
	JOIN players p ON p.player_id = bw.player_id
	WHERE bw.overs >= 4
	GROUP BY v.name, v.city, bw.player_id, p.name
	HAVING COUNT(DISTINCT bw.match_id) >= 3`)},

	{ID: "Q15", Title: "Players in close matches", View: "q15_close_matches", body: static(`
	SELECT b.player_id, p.name,
	       ROUND(AVG(b.runs), 2) AS avg_runs_in_close,
	       COUNT(DISTINCT b.match_id) AS close_matches_played,
	       SUM(CASE WHEN m.winner_id = b.team_id THEN 1 ELSE 0 END) AS wins_when_batted
	FROM batting_stats b
	JOIN matches m ON m.match_id = b.match_id
	JOIN players p ON p.player_id = b.player_id
	WHERE (m.victory_type = 'runs' AND substring(m.win_margin FROM '^[0-9]+')::int < 50)
	   OR (m.victory_type = 'wickets' AND substring(m.win_margin FROM '^[0-9]+')::int < 5)
	GROUP BY b.player_id, p.name`)},

	{ID: "Q16", Title: "Year-wise batting since 2020", View: "q16_yearly_perf_since_2020", body: static(`
	SELECT p.player_id, p.name, EXTRACT(YEAR FROM m.match_date)::int AS yr,
	       ROUND(AVG(b.runs), 2) AS avg_runs_per_match,
	       ROUND(AVG(NULLIF(b.strike_rate, 0))::numeric, 2) AS avg_strike_rate,
	       COUNT(DISTINCT m.match_id) AS matches_in_year
	FROM batting_stats b
	JOIN matches m ON m.match_id = b.match_id
	JOIN players p ON p.player_id = b.player_id
	WHERE m.match_date >= DATE '2020-01-01'
	GROUP BY p.player_id, p.name, EXTRACT(YEAR FROM m.match_date)
	HAVING COUNT(DISTINCT m.match_id) >= 5`)},

	{ID: "Q17", Title: "Toss win advantage by decision", View: "q17_toss_advantage", body: static(`
	SELECT m.toss_decision,
	       ROUND(100.0 * SUM(CASE WHEN m.winner_id = m.toss_winner_id THEN 1 ELSE 0 END) / COUNT(*), 2) AS pct_won_after_winning_toss,
	       COUNT(*) AS total_matches
	FROM matches m
	WHERE m.toss_winner_id IS NOT NULL AND m.victory_type IS NOT NULL
	GROUP BY m.toss_decision`)},

	{ID: "Q18", Title: "Economical bowlers (ODI/T20I)", View: "q18_economical_limited_overs", body: static(`
	SELECT bw.player_id, p.name,
	       SUM(bw.runs) AS runs_conceded,
	       SUM(bw.overs) AS overs_bowled,
	       SUM(bw.wickets) AS wickets,
	       ROUND((SUM(bw.runs) / NULLIF(SUM(bw.overs), 0))::numeric, 2) AS economy
	FROM bowling_stats bw
	JOIN matches m ON m.match_id = bw.match_id
	JOIN players p ON p.player_id = bw.player_id
	WHERE m.match_format IN ('ODI', 'T20I')
	GROUP BY bw.player_id, p.name
	HAVING COUNT(DISTINCT bw.match_id) >= 10
	   AND SUM(bw.overs) / COUNT(DISTINCT bw.match_id) >= 2
	ORDER BY economy ASC, wickets DESC`)},

	{ID: "Q19", Title: "Most consistent batsmen since 2022", View: "q19_consistent_batsmen", body: static(`
	SELECT b.player_id, p.name,
	       ROUND(AVG(b.runs), 2) AS avg_runs,
	       ROUND(STDDEV_SAMP(b.runs), 2) AS stddev_runs,
	       COUNT(*) AS innings_count
	FROM batting_stats b
	JOIN matches m ON m.match_id = b.match_id
	JOIN players p ON p.player_id = b.player_id
	WHERE m.match_date >= DATE '2022-01-01' AND b.balls >= 10
	GROUP BY b.player_id, p.name
	ORDER BY stddev_runs ASC NULLS LAST, avg_runs DESC`)},

	{ID: "Q20", Title: "Matches & batting averages by format", View: "q20_formats_played_avg", body: static(`
	SELECT x.player_id, x.name,
	       SUM(CASE WHEN x.format = 'Test' THEN x.matches ELSE 0 END) AS tests,
	       SUM(CASE WHEN x.format = 'ODI' THEN x.matches ELSE 0 END) AS odis,
	       SUM(CASE WHEN x.format = 'T20I' THEN x.matches ELSE 0 END) AS t20is,
	       ROUND(AVG(x.bat_avg), 2) AS overall_avg_of_avgs
	FROM (
	    SELECT p.player_id, p.name, m.match_format AS format,
	           COUNT(DISTINCT m.match_id) AS matches,
	           ROUND(SUM(b.runs)::numeric / NULLIF(` + dismissals + `, 0), 2) AS bat_avg
	    FROM batting_stats b
	    JOIN matches m ON m.match_id = b.match_id
	    JOIN players p ON p.player_id = b.player_id
	    GROUP BY p.player_id, p.name, m.match_format
	) x
	GROUP BY x.player_id, x.name
	HAVING SUM(CASE WHEN x.format IN ('Test', 'ODI', 'T20I') THEN x.matches ELSE 0 END) >= 20`)},

	{ID: "Q21", Title: "Composite performance ranking", View: "q21_composite_rank", OrderBy: "format, total_score DESC", body: compositeRank},

	{ID: "Q22", Title: "Head-to-head (last 3 years, >=5 matches)", View: "q22_head_to_head", body: static(`
	SELECT LEAST(m.team1_id, m.team2_id) AS team_a,
	       GREATEST(m.team1_id, m.team2_id) AS team_b,
	       COUNT(*) AS total_matches,
	       SUM(CASE WHEN m.winner_id = LEAST(m.team1_id, m.team2_id) THEN 1 ELSE 0 END) AS wins_team_a,
	       SUM(CASE WHEN m.winner_id = GREATEST(m.team1_id, m.team2_id) THEN 1 ELSE 0 END) AS wins_team_b,
	       ROUND(AVG(CASE WHEN m.winner_id = LEAST(m.team1_id, m.team2_id) AND m.victory_type = 'runs'
	                      THEN substring(m.win_margin FROM '^[0-9]+')::int END), 2) AS avg_margin_runs_a,
	       ROUND(AVG(CASE WHEN m.winner_id = GREATEST(m.team1_id, m.team2_id) AND m.victory_type = 'runs'
	                      THEN substring(m.win_margin FROM '^[0-9]+')::int END), 2) AS avg_margin_runs_b
	FROM matches m
	WHERE m.match_date >= CURRENT_DATE - INTERVAL '3 years'
	GROUP BY LEAST(m.team1_id, m.team2_id), GREATEST(m.team1_id, m.team2_id)
	HAVING COUNT(*) >= 5`)},

	{ID: "Q23", Title: "Recent form (last 10 innings)", View: "q23_recent_form", body: static(`
	SELECT x.player_id, x.name,
	       ROUND(AVG(CASE WHEN x.rn <= 5 THEN x.runs END), 2) AS avg_last5,
	       ROUND(AVG(x.runs), 2) AS avg_last10,
	       SUM(CASE WHEN x.runs >= 50 THEN 1 ELSE 0 END) AS fifties_in_last10,
	       ROUND(STDDEV_SAMP(x.runs), 2) AS consistency_std
	FROM (
	    SELECT b.player_id, p.name, b.runs,
	           ROW_NUMBER() OVER (PARTITION BY b.player_id ORDER BY m.match_date DESC NULLS LAST, b.id DESC) AS rn
	    FROM batting_stats b
	    JOIN matches m ON m.match_id = b.match_id
	    JOIN players p ON p.player_id = b.player_id
	) x
	WHERE x.rn <= 10
	GROUP BY x.player_id, x.name`)},

	{ID: "Q24", Title: "Best batting partnerships (>=5 together)", View: "q24_best_partnerships", body: static(`
	SELECT pr.player1_id, pr.player2_id, p1.name AS player1, p2.name AS player2,
	       ROUND(AVG(pr.runs), 2) AS avg_partnership,
	       SUM(CASE WHEN pr.runs > 50 THEN 1 ELSE 0 END) AS over50_count,
	       MAX(pr.runs) AS highest,
	       COUNT(*) AS total_partnerships,
	       ROUND(100.0 * SUM(CASE WHEN pr.runs > 50 THEN 1 ELSE 0 END) / COUNT(*), 2) AS success_rate
	FROM partnerships pr
	JOIN players p1 ON p1.player_id = pr.player1_id
	JOIN players p2 ON p2.player_id = pr.player2_id
	WHERE pr.pair_pos_diff = 1 OR pr.pair_pos_diff IS NULL
	GROUP BY pr.player1_id, pr.player2_id, p1.name, p2.name
	HAVING COUNT(*) >= 5
	ORDER BY success_rate DESC, avg_partnership DESC, highest DESC`)},

	{ID: "Q25", Title: "Quarterly performance trends", View: "q25_quarterly_trends", body: quarterlyTrends},
}

// compositeRank scores every player per format from batting, bowling, and
// fielding sub-aggregates. Players with no batting rows still appear once,
// with a NULL format.
func compositeRank(p Policy) string {
	batting := fmt.Sprintf(
		"(COALESCE(b.runs, 0) * %s) + (COALESCE(b.bat_avg, 0) * %s) + (COALESCE(b.strike_rate, 0) * %s)",
		lit(p.RunWeight), lit(p.BatAvgWeight), lit(p.StrikeRateWeight))
	bowling := fmt.Sprintf(
		"(COALESCE(w.wkts, 0) * %s) + ((%s - COALESCE(w.bowl_avg, %s)) * %s) + ((%s - COALESCE(w.economy, %s)) * %s)",
		lit(p.WicketWeight),
		lit(p.BowlAvgBaseline), lit(p.BowlAvgBaseline), lit(p.BowlAvgWeight),
		lit(p.EconomyBaseline), lit(p.EconomyBaseline), lit(p.EconomyWeight))
	fielding := fmt.Sprintf("((COALESCE(f.catches, 0) + COALESCE(f.stumpings, 0)) * %s)", lit(p.FieldingWeight))

	return `
	WITH bat AS (
	    SELECT p.player_id, p.name, m.match_format,
	           SUM(b.runs) AS runs,
	           COALESCE(ROUND(SUM(b.runs)::numeric / NULLIF(` + dismissals + `, 0), 2), 0) AS bat_avg,
	           ROUND(AVG(NULLIF(b.strike_rate, 0))::numeric, 2) AS strike_rate
	    FROM players p
	    LEFT JOIN batting_stats b ON b.player_id = p.player_id
	    LEFT JOIN matches m ON m.match_id = b.match_id
	    GROUP BY p.player_id, p.name, m.match_format
	),
	bowl AS (
	    SELECT p.player_id, m.match_format,
	           SUM(w.wickets) AS wkts,
	           ROUND(SUM(w.runs)::numeric / NULLIF(SUM(w.wickets), 0), 2) AS bowl_avg,
	           ROUND((SUM(w.runs) / NULLIF(SUM(w.overs), 0))::numeric, 2) AS economy
	    FROM players p
	    LEFT JOIN bowling_stats w ON w.player_id = p.player_id
	    LEFT JOIN matches m ON m.match_id = w.match_id
	    GROUP BY p.player_id, m.match_format
	),
	field AS (
	    SELECT p.player_id, m.match_format,
	           COALESCE(SUM(f.catches), 0) AS catches,
	           COALESCE(SUM(f.stumpings), 0) AS stumpings
	    FROM players p
	    LEFT JOIN fielding_stats f ON f.player_id = p.player_id
	    LEFT JOIN matches m ON m.match_id = f.match_id
	    GROUP BY p.player_id, m.match_format
	)
	SELECT b.player_id, b.name, b.match_format AS format,
	       ROUND((` + batting + `)::numeric, 2) AS batting_points,
	       ROUND((` + bowling + `)::numeric, 2) AS bowling_points,
	       ROUND((` + fielding + `)::numeric, 2) AS fielding_points,
	       ROUND((` + batting + ` + ` + bowling + ` + ` + fielding + `)::numeric, 2) AS total_score
	FROM bat b
	LEFT JOIN bowl w ON w.player_id = b.player_id AND w.match_format = b.match_format
	LEFT JOIN field f ON f.player_id = b.player_id AND f.match_format = b.match_format`
}

// quarterlyTrends averages each player's runs per calendar quarter and labels
// the quarter by how the two-quarter moving average moved against the one
// before it. The window runs over quarter rows, not innings rows, so each
// player-quarter gets exactly one trend.
func quarterlyTrends(p Policy) string {
	return fmt.Sprintf(`
	WITH innings AS (
	    SELECT p.player_id, p.name,
	           EXTRACT(YEAR FROM m.match_date)::int AS yr,
	           EXTRACT(QUARTER FROM m.match_date)::int AS qtr,
	           b.runs, b.strike_rate
	    FROM batting_stats b
	    JOIN matches m ON m.match_id = b.match_id
	    JOIN players p ON p.player_id = b.player_id
	    WHERE m.match_date IS NOT NULL
	),
	quarters AS (
	    SELECT player_id, name, yr, qtr,
	           AVG(runs) AS avg_runs,
	           AVG(NULLIF(strike_rate, 0)) AS avg_sr,
	           COUNT(*) AS matches_in_qtr
	    FROM innings
	    GROUP BY player_id, name, yr, qtr
	),
	moved AS (
	    SELECT q.*,
	           AVG(q.avg_runs) OVER (PARTITION BY q.player_id ORDER BY q.yr, q.qtr
	                                 ROWS BETWEEN 1 PRECEDING AND CURRENT ROW)
	         - AVG(q.avg_runs) OVER (PARTITION BY q.player_id ORDER BY q.yr, q.qtr
	                                 ROWS BETWEEN 2 PRECEDING AND 1 PRECEDING) AS diff_prev
	    FROM quarters q
	)
	SELECT player_id, name, yr, qtr,
	       ROUND(avg_runs, 2) AS avg_runs,
	       ROUND(avg_sr::numeric, 2) AS avg_sr,
	       matches_in_qtr,
	       CASE
	           WHEN diff_prev > %s THEN 'Improving'
	           WHEN diff_prev < %s THEN 'Declining'
	           ELSE 'Stable'
	       END AS trend
	FROM moved
	WHERE matches_in_qtr >= %d`,
		lit(p.TrendImproving), lit(p.TrendDeclining), p.TrendMinInnings)
}
