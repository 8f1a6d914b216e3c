package analytics

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsComplete(t *testing.T) {
	qs := Registry()
	require.Len(t, qs, 25)

	views := map[string]bool{}
	for i, q := range qs {
		assert.Equal(t, fmt.Sprintf("Q%d", i+1), q.ID)
		assert.True(t, strings.HasPrefix(q.View, fmt.Sprintf("q%d_", i+1)), q.View)
		assert.NotEmpty(t, q.Title)
		assert.False(t, views[q.View], "duplicate view %s", q.View)
		views[q.View] = true

		def := q.Definition(DefaultPolicy())
		assert.True(t, strings.HasPrefix(def, "CREATE VIEW "+q.View+" AS"), q.ID)
	}
}

func TestRegistryReturnsCopy(t *testing.T) {
	qs := Registry()
	qs[0].View = "changed"
	q, ok := Lookup("Q1")
	require.True(t, ok)
	assert.Equal(t, "q1_players_india", q.View)
}

func TestLookup(t *testing.T) {
	for _, id := range []string{"Q21", "q21", "21", " Q21 "} {
		q, ok := Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, "q21_composite_rank", q.View)
		assert.Equal(t, "SELECT * FROM q21_composite_rank ORDER BY format, total_score DESC", q.SQL())
	}
	for _, id := range []string{"", "Q0", "Q26", "abc"} {
		_, ok := Lookup(id)
		assert.False(t, ok, id)
	}
	q, _ := Lookup("Q4")
	assert.Equal(t, "SELECT * FROM q4_big_venues", q.SQL())
}

// mysqlisms that do not exist in Postgres.
var foreignSQL = regexp.MustCompile(`(?i)\b(CURDATE|DATE_SUB|REGEXP_SUBSTR|UNSIGNED|YEAR\(|QUARTER\()|is_out\s*=\s*1`)

func TestDefinitionsArePostgres(t *testing.T) {
	for _, q := range Registry() {
		def := q.Definition(DefaultPolicy())
		assert.False(t, foreignSQL.MatchString(def), "%s: %s", q.ID, foreignSQL.FindString(def))
		assert.NotContains(t, def, ";", q.ID)
	}
}

func TestCompositeRankUsesPolicy(t *testing.T) {
	q, _ := Lookup("Q21")

	def := q.Definition(DefaultPolicy())
	assert.Contains(t, def, "COALESCE(b.runs, 0) * 0.01")
	assert.Contains(t, def, "COALESCE(b.bat_avg, 0) * 0.5")
	assert.Contains(t, def, "COALESCE(b.strike_rate, 0) * 0.3")
	assert.Contains(t, def, "(50 - COALESCE(w.bowl_avg, 50)) * 0.5")
	assert.Contains(t, def, "(6 - COALESCE(w.economy, 6)) * 2")

	p := DefaultPolicy()
	p.WicketWeight = 25
	p.EconomyBaseline = 7.5
	def = q.Definition(p)
	assert.Contains(t, def, "COALESCE(w.wkts, 0) * 25")
	assert.Contains(t, def, "(7.5 - COALESCE(w.economy, 7.5))")
}

func TestQuarterlyTrendsUsesPolicy(t *testing.T) {
	q, _ := Lookup("Q25")

	def := q.Definition(DefaultPolicy())
	assert.Contains(t, def, "diff_prev > 1 THEN 'Improving'")
	assert.Contains(t, def, "diff_prev < (-1) THEN 'Declining'")
	assert.Contains(t, def, "matches_in_qtr >= 3")

	p := DefaultPolicy()
	p.TrendImproving = 2.5
	p.TrendDeclining = -4
	p.TrendMinInnings = 1
	def = q.Definition(p)
	assert.Contains(t, def, "diff_prev > 2.5")
	assert.Contains(t, def, "diff_prev < (-4)")
	assert.Contains(t, def, "matches_in_qtr >= 1")
}

func TestQuarterlyTrendsWindowsOverQuarters(t *testing.T) {
	q, _ := Lookup("Q25")
	def := q.Definition(DefaultPolicy())

	group := strings.Index(def, "GROUP BY player_id, name, yr, qtr")
	window := strings.Index(def, "OVER (PARTITION BY q.player_id ORDER BY q.yr, q.qtr")
	require.NotEqual(t, -1, group)
	require.NotEqual(t, -1, window)
	assert.Less(t, group, window, "innings collapse to quarters before the moving average")
	assert.Contains(t, def, "FROM quarters q")
	assert.NotContains(t, def, "GROUP BY player_id, name, yr, qtr, matches_in_qtr, trend")
}

func TestLit(t *testing.T) {
	assert.Equal(t, "0.01", lit(0.01))
	assert.Equal(t, "2", lit(2))
	assert.Equal(t, "(-1.5)", lit(-1.5))
}
