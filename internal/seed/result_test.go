package seed

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewResult(t *testing.T) {
	r := NewResult(RoutineRefresh)
	assert.NotEqual(t, uuid.Nil, r.RunID)
	assert.Equal(t, RoutineRefresh, r.Routine)
	assert.False(t, r.StartedAt.IsZero())
	assert.Equal(t, "ok", r.Status())
	assert.NoError(t, r.Err())
}

func TestResultStatus(t *testing.T) {
	r := NewResult(RoutineTeams)
	r.AddSkip("player", int64(42), errors.New("bad row"))
	assert.Equal(t, "partial", r.Status())
	assert.Equal(t, Skip{Entity: "player", Key: "42", Reason: "bad row"}, r.Skips[0])

	r.abort(errors.New("budget gone"), "raise API_BUDGET")
	assert.Equal(t, "aborted", r.Status())
	assert.Equal(t, "budget gone", r.Aborted)
	assert.Equal(t, "raise API_BUDGET", r.Hint)
	assert.EqualError(t, r.Err(), "budget gone")
}

func TestResultAdd(t *testing.T) {
	r := NewResult(RoutineSeries)
	r.MatchesUpserted = 1

	var other SeedResult
	other.BattingUpserted = 11
	other.BowlingUpserted = 6
	other.PartnershipsUpserted = 10
	other.FieldingUpserted = 4
	other.AddSkip("batting", "1/1/7", nil)
	other.AddErrorf("roster %d: %s", 2, "rate limited")

	r.Add(other)
	assert.Equal(t, 1, r.MatchesUpserted)
	assert.Equal(t, 11, r.BattingUpserted)
	assert.Equal(t, 6, r.BowlingUpserted)
	assert.Equal(t, 10, r.PartnershipsUpserted)
	assert.Equal(t, 4, r.FieldingUpserted)
	assert.Len(t, r.Skips, 1)
	assert.Empty(t, r.Skips[0].Reason)
	assert.Equal(t, []string{"roster 2: rate limited"}, r.Errors)
}

func TestResultSummary(t *testing.T) {
	r := NewResult(RoutineBackfill)
	r.SeriesUpserted = 2
	r.MatchesUpserted = 5
	r.APICalls = 17
	r.AddError("boom")

	s := r.Summary()
	assert.Contains(t, s, "series=2")
	assert.Contains(t, s, "matches=5")
	assert.Contains(t, s, "api_calls=17")
	assert.Contains(t, s, "errors=1")
	assert.NotContains(t, s, "aborted")

	r.abort(errors.New("no key"), "")
	assert.Contains(t, r.Summary(), `aborted="no key"`)
}
