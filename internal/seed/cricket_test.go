package seed

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-livestats/internal/provider"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
)

func TestTriage(t *testing.T) {
	r := NewRunner(downDB{}, newFakeSource(), discardLogger())

	tests := []struct {
		name    string
		err     error
		stop    bool
		skips   int
		errs    int
		stopped bool
	}{
		{name: "ok", err: nil},
		{name: "no data", err: errors.Wrap(cricbuzz.ErrNoData, "roster 2"), skips: 1},
		{name: "malformed", err: cricbuzz.ErrMalformed, skips: 1},
		{name: "rate limited", err: cricbuzz.ErrRateLimited, stop: true, errs: 1, stopped: true},
		{name: "missing key", err: cricbuzz.ErrMissingCredentials, stop: true},
		{name: "budget", err: cricbuzz.ErrBudgetExhausted, stop: true},
		{name: "canceled", err: context.Canceled, stop: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResult("test")
			err := r.triage(&res, "roster", 2, tt.err)
			assert.Equal(t, tt.stop, err != nil)
			assert.Len(t, res.Skips, tt.skips)
			assert.Len(t, res.Errors, tt.errs)
			assert.Equal(t, tt.stopped, errors.Is(err, errBatchStopped))
			if tt.stop {
				assert.True(t, errors.Is(err, tt.err), "cause is preserved")
			}
		})
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	src := newFakeSource()
	r := NewRunner(downDB{}, src, discardLogger())

	r.running.Lock()
	assert.True(t, r.Busy())
	res := r.LoadTeamsAndPlayers(context.Background())
	r.running.Unlock()

	assert.Equal(t, "aborted", res.Status())
	assert.True(t, errors.Is(res.Err(), ErrRunInProgress))
	assert.Empty(t, src.Calls(), "no fetch while another run holds the lock")
	assert.False(t, r.Busy())
}

func TestFatalFetchAbortsRun(t *testing.T) {
	src := newFakeSource()
	src.errs["teams"] = errors.WithHint(cricbuzz.ErrMissingCredentials, "set RAPIDAPI_KEY")
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.LoadTeamsAndPlayers(context.Background())
	assert.Equal(t, "aborted", res.Status())
	assert.True(t, errors.Is(res.Err(), cricbuzz.ErrMissingCredentials))
	assert.Equal(t, "set RAPIDAPI_KEY", res.Hint)
	assert.Equal(t, []string{"teams"}, src.Calls())
	assert.Equal(t, 1, res.APICalls)
	assert.False(t, res.FinishedAt.IsZero())
}

func TestRowFailuresAreSkipped(t *testing.T) {
	src := newFakeSource()
	src.teams = []provider.Team{{ID: 2, Name: "India"}, {ID: 13, Name: "New Zealand"}}
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.LoadTeamsAndPlayers(context.Background())

	require.Len(t, res.Skips, 2, "each failed team upsert is its own skip")
	assert.Equal(t, "team", res.Skips[0].Entity)
	assert.Equal(t, "2", res.Skips[0].Key)
	assert.Zero(t, res.TeamsUpserted)
	// Listing stored teams needs the database, so the run stops there.
	assert.Equal(t, "aborted", res.Status())
	assert.True(t, errors.Is(res.Err(), errDown))
}

func TestRateLimitStopsBatchWithoutAbort(t *testing.T) {
	src := newFakeSource()
	src.errs["series/77"] = cricbuzz.ErrRateLimited
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.LoadSeriesDeep(context.Background(), 77)
	assert.Empty(t, res.Aborted)
	assert.Equal(t, "partial", res.Status())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "series 77")
}

func TestCanceledContextAbortsRun(t *testing.T) {
	src := fixtureSource(t)
	r := NewRunner(downDB{}, src, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.LoadSeriesDeep(ctx, 8393)
	assert.Equal(t, "aborted", res.Status())
	assert.Empty(t, src.Calls())
}

func TestBackfillPaging(t *testing.T) {
	src := newFakeSource()
	src.pages["current/"] = cricbuzz.SeriesPage{
		Series: []provider.Series{
			{ID: 1, Name: "Old Tour", StartDate: "2019-11-01"},
			{ID: 2, Name: "New Tour", StartDate: "2024-02-10"},
		},
		Cursor: "c2",
	}
	src.pages["current/c2"] = cricbuzz.SeriesPage{
		Series: []provider.Series{{ID: 3, Name: "Undated Cup"}},
		Cursor: "c3",
	}
	src.pages["current/c3"] = cricbuzz.SeriesPage{
		Series: []provider.Series{{ID: 4, Name: "Beyond the ceiling", StartDate: "2025-01-01"}},
	}
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.Backfill(context.Background(), 2020, 2)

	assert.Equal(t, []string{
		"series_page/current/",
		"series_page/current/c2",
		"series_page/archive/",
	}, src.Calls(), "page ceiling per listing; empty archive page stops")
	// The series stub upsert fails against the down database, so each
	// series that passes the year floor is a skip and nothing is deep-loaded.
	require.Len(t, res.Skips, 2)
	assert.Equal(t, "2", res.Skips[0].Key)
	assert.Equal(t, "3", res.Skips[1].Key, "unknown start year is not filtered")
	assert.Equal(t, "partial", res.Status())
	assert.Equal(t, 3, res.APICalls)
}

func TestIncrementalRefreshStopsOnRateLimit(t *testing.T) {
	src := newFakeSource()
	src.listings[""] = cricbuzz.MatchListing{
		Matches: []provider.LiveMatch{{Match: provider.Match{ID: 5}}},
		Cursor:  "p2",
	}
	src.errs["matches/recent/p2"] = errors.WithHint(cricbuzz.ErrRateLimited, "wait a minute")
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.IncrementalRefresh(context.Background(), 0)

	assert.Equal(t, []string{
		"matches/recent/",
		"mcenter/5",
		"matches/recent/p2",
	}, src.Calls())
	assert.Empty(t, res.Aborted)
	assert.Equal(t, "partial", res.Status())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "recent_page 2")
	assert.Contains(t, res.Errors[0], "wait a minute")
	// mcenter/5 has no canned result, and the match upsert then fails.
	assert.Len(t, res.Skips, 2)
}

func TestVenueDetailFetchedOncePerRun(t *testing.T) {
	wankhede := func() *provider.Venue {
		return &provider.Venue{ID: 81, Name: "Wankhede Stadium", City: "Mumbai"}
	}
	unknown := func() *provider.Venue {
		return &provider.Venue{ID: 99, Name: "Temporary Ground"}
	}
	src := newFakeSource()
	src.listings[""] = cricbuzz.MatchListing{
		Matches: []provider.LiveMatch{
			{Match: provider.Match{ID: 6, Venue: wankhede()}},
			{Match: provider.Match{ID: 7, Venue: wankhede()}},
			{Match: provider.Match{ID: 8, Venue: unknown()}},
			{Match: provider.Match{ID: 9, Venue: unknown()}},
		},
	}
	capacity := 33108
	src.venues[81] = provider.Venue{ID: 81, Name: "Wankhede Stadium", City: "Mumbai", Country: "India", Capacity: &capacity}
	r := NewRunner(downDB{}, src, discardLogger())

	res := r.IncrementalRefresh(context.Background(), 0)

	assert.Equal(t, []string{
		"matches/recent/",
		"mcenter/6", "venue/81",
		"mcenter/7",
		"mcenter/8", "venue/99",
		"mcenter/9",
	}, src.Calls(), "a failed lookup is not retried within the run")
	var venueSkips []string
	for _, s := range res.Skips {
		if s.Entity == "venue" {
			venueSkips = append(venueSkips, s.Key)
		}
	}
	assert.Equal(t, []string{"99"}, venueSkips)

	v := wankhede()
	require.NoError(t, r.enrichVenue(context.Background(), &res, v))
	assert.Equal(t, "India", v.Country)
	require.NotNil(t, v.Capacity)
	assert.Equal(t, 33108, *v.Capacity)
	assert.Equal(t, "Mumbai", v.City, "present fields are kept")
	assert.Len(t, src.Calls(), 7, "served from the run's venue cache")
}
