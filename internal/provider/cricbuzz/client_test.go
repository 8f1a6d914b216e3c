package cricbuzz

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep and records every positive wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type response struct {
	status int
	body   string
}

// scripted serves responses in order, repeating the last one.
func scripted(t *testing.T, calls *atomic.Int32, rs ...response) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(rs) {
			n = len(rs) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rs[n].status)
		_, _ = io.WriteString(w, rs[n].body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, clock *fakeClock, mod func(*Config)) *Client {
	cfg := Config{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		Budget:            100,
		RequestsPerMinute: 60,
		MaxRetries:        3,
		BackoffBase:       800 * time.Millisecond,
		TraceSize:         10,
		Clock:             clock,
	}
	if mod != nil {
		mod(&cfg)
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetSendsRapidAPIHeaders(t *testing.T) {
	var gotKey, gotHost, gotPath, gotCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-RapidAPI-Key")
		gotHost = r.Header.Get("X-RapidAPI-Host")
		gotPath = r.URL.Path
		gotCursor = r.URL.Query().Get("cursor")
		_, _ = io.WriteString(w, `{"seriesMapProto":[]}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv, newFakeClock(), nil)
	_, err := c.SeriesListPage(context.Background(), true, "abc")
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, DefaultHost, gotHost)
	assert.Equal(t, "/series/v1/archives/international", gotPath)
	assert.Equal(t, "abc", gotCursor)

	entries := c.Trace().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, KindOK, entries[0].Kind)
	assert.Equal(t, "series_archive", entries[0].Endpoint)
	assert.Contains(t, entries[0].String(), "[API 1] GET ")
	assert.Equal(t, 1, c.Limiter().Usage().Used)
}

func TestTeamsEndToEnd(t *testing.T) {
	body := fixture(t, "teams.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams/v1/international" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv, newFakeClock(), nil)
	teams, err := c.Teams(context.Background())
	require.NoError(t, err)
	assert.Len(t, teams, 3)

	_, err = c.Roster(context.Background(), 2)
	assert.Equal(t, KindNoData, KindOf(err), "404 is no data")
}

func TestVenueDetail(t *testing.T) {
	body := fixture(t, "venue.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/venues/v1/41":
			_, _ = w.Write(body)
		case "/venues/v1/42":
			_, _ = io.WriteString(w, `{"city":"Nowhere"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv, newFakeClock(), nil)
	v, err := c.Venue(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, int64(41), v.ID)
	assert.Equal(t, "Maharashtra Cricket Association Stadium", v.Name)
	assert.Equal(t, "India", v.Country)
	require.NotNil(t, v.Capacity)
	assert.Equal(t, 37406, *v.Capacity)

	_, err = c.Venue(context.Background(), 42)
	assert.Equal(t, KindNoData, KindOf(err), "nameless venue")
}

func TestGetClassifiesFailures(t *testing.T) {
	tests := []struct {
		name  string
		resp  response
		kind  Kind
		calls int32
	}{
		{"rate limited", response{http.StatusTooManyRequests, `{"message":"Too many requests"}`}, KindRateLimited, 1},
		{"not found", response{http.StatusNotFound, `{}`}, KindNoData, 1},
		{"forbidden", response{http.StatusForbidden, `{"message":"not subscribed"}`}, KindNoData, 1},
		{"empty body", response{http.StatusOK, "  "}, KindMalformed, 1},
		{"invalid json", response{http.StatusOK, `{"a":`}, KindMalformed, 1},
		{"server error", response{http.StatusBadGateway, `bad gateway`}, KindNoData, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := scripted(t, &calls, tt.resp)
			c := newTestClient(srv, newFakeClock(), nil)

			_, err := c.get(context.Background(), "test", "/x", nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.False(t, IsFatal(err))
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls,
		response{http.StatusInternalServerError, `oops`},
		response{http.StatusServiceUnavailable, `oops`},
		response{http.StatusOK, `{"ok":true}`},
	)
	clock := newFakeClock()
	c := newTestClient(srv, clock, nil)

	body, err := c.get(context.Background(), "test", "/x", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())

	sleeps := clock.Sleeps()
	assert.Contains(t, sleeps, 800*time.Millisecond, "linear backoff, first retry")
	assert.Contains(t, sleeps, 1600*time.Millisecond, "linear backoff, second retry")

	entries := c.Trace().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, KindTransient, entries[0].Kind)
	assert.Equal(t, 2, entries[1].Attempt)
	assert.Equal(t, KindOK, entries[2].Kind)
	assert.Equal(t, 3, c.Limiter().Usage().Used, "every attempt is charged")
}

func TestGetGivesUpWithHint(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusInternalServerError, `oops`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) { cfg.MaxRetries = 2 })

	_, err := c.get(context.Background(), "test", "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Contains(t, err.Error(), "gave up after 3 attempts", "first try plus two retries")
	assert.NotEmpty(t, Hint(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDefaultRetriesFollowFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusServiceUnavailable, `busy`})
	clock := newFakeClock()
	c := newTestClient(srv, clock, func(cfg *Config) { cfg.MaxRetries = 0 })

	_, err := c.get(context.Background(), "test", "/x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(6), calls.Load(), "one attempt plus five retries")
	assert.Contains(t, clock.Sleeps(), 5*800*time.Millisecond, "fifth retry backoff")
}

func TestBreakerOpensAfterRepeatedGiveUps(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusBadGateway, `down`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) {
		cfg.MaxRetries = 1
		cfg.BreakerThreshold = 2
		cfg.BreakerCooldown = time.Hour
	})

	for i := 0; i < 2; i++ {
		_, err := c.get(context.Background(), "test", "/x", nil)
		require.Error(t, err)
	}
	require.Equal(t, int32(4), calls.Load(), "two attempts per request")

	_, err := c.get(context.Background(), "test", "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Contains(t, Hint(err), "cool-down")
	assert.Equal(t, int32(4), calls.Load(), "an open breaker sends nothing")
	assert.Equal(t, 4, c.Limiter().Usage().Used, "and charges nothing")
}

func TestBreakerIgnoresSoftOutcomes(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusNotFound, `{}`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) { cfg.BreakerThreshold = 1 })

	for i := 0; i < 3; i++ {
		_, err := c.get(context.Background(), "test", "/x", nil)
		assert.True(t, errors.Is(err, ErrNoData))
	}
	assert.Equal(t, int32(3), calls.Load(), "404s never trip the breaker")
}

func TestGetRequiresCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusOK, `{}`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) { cfg.APIKey = "" })

	_, err := c.Teams(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.True(t, IsFatal(err))
	assert.Contains(t, Hint(err), "RAPIDAPI_KEY")
	assert.Zero(t, calls.Load(), "no request without a key")
}

func TestBudgetCaps(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusOK, `{}`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) {
		cfg.Budget = 4
		cfg.MaxPerRun = 2
	})
	ctx := c.Limiter().StartRun(context.Background())

	for i := 0; i < 2; i++ {
		_, err := c.get(ctx, "test", "/x", nil)
		require.NoError(t, err)
	}
	_, err := c.get(ctx, "test", "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExhausted), "per-run cap")
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Contains(t, Hint(err), "2 of 2 this run")

	ctx = c.Limiter().StartRun(context.Background())
	_, err = c.get(ctx, "test", "/x", nil)
	require.NoError(t, err)

	_, err = c.get(context.Background(), "test", "/x", nil)
	require.NoError(t, err, "calls outside a run skip the per-run cap")

	ctx = c.Limiter().StartRun(context.Background())
	_, err = c.get(ctx, "test", "/x", nil)
	assert.True(t, errors.Is(err, ErrBudgetExhausted), "overall budget survives new runs")
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, Usage{Used: 4, RunUsed: 0, Budget: 4, MaxPerRun: 2}, c.Limiter().Usage())
}

func TestLiveCallsAfterRunIgnoreRunCap(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusOK, `{"typeMatches":[]}`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) {
		cfg.Budget = 100
		cfg.MaxPerRun = 2
	})

	run := c.Limiter().StartRun(context.Background())
	for i := 0; i < 2; i++ {
		_, err := c.get(run, "matches", "/matches/v1/recent", nil)
		require.NoError(t, err)
	}
	_, err := c.get(run, "matches", "/matches/v1/recent", nil)
	require.True(t, errors.Is(err, ErrBudgetExhausted), "the run itself is capped")

	_, err = c.get(context.Background(), "matches", "/matches/v1/live", nil)
	require.NoError(t, err)
	assert.Equal(t, Usage{Used: 3, RunUsed: 2, Budget: 100, MaxPerRun: 2}, c.Limiter().Usage())
}

func TestLimiterPacesCalls(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(LimiterConfig{Budget: 10, RequestsPerMinute: 30}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestTraceIsBounded(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusOK, `{}`})
	c := newTestClient(srv, newFakeClock(), func(cfg *Config) { cfg.TraceSize = 2 })

	for i := 0; i < 3; i++ {
		_, err := c.get(context.Background(), "test", "/x", nil)
		require.NoError(t, err)
	}
	entries := c.Trace().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Seq)
	assert.Equal(t, 3, entries[1].Seq)
}

func TestGetHonorsCanceledContext(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, response{http.StatusOK, `{}`})
	c := newTestClient(srv, newFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.get(ctx, "test", "/x", nil)
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.True(t, IsFatal(err))
	assert.Zero(t, calls.Load())
}
