// Package handler provides the operator API's HTTP handlers: ETL triggers,
// analytics queries, provider pass-through endpoints, and the crud_info
// table. Handlers depend on small interfaces so they can be driven by
// httptest without a database or the provider.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/cricket-livestats/internal/analytics"
	"github.com/albapepper/cricket-livestats/internal/api/respond"
	"github.com/albapepper/cricket-livestats/internal/cache"
	"github.com/albapepper/cricket-livestats/internal/crud"
	"github.com/albapepper/cricket-livestats/internal/provider"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
	"github.com/albapepper/cricket-livestats/internal/seed"
)

// DB is the database surface the handlers use. *db.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	HealthCheck(ctx context.Context) error
}

// ETL runs the ingestion routines. *seed.Runner satisfies it.
type ETL interface {
	LoadTeamsAndPlayers(ctx context.Context) seed.SeedResult
	LoadSeriesDeep(ctx context.Context, seriesID int64) seed.SeedResult
	Backfill(ctx context.Context, fromYear, maxPages int) seed.SeedResult
	IncrementalRefresh(ctx context.Context, maxPages int) seed.SeedResult
	Busy() bool
}

// Live is the provider surface served without touching the database.
// *cricbuzz.Client satisfies it.
type Live interface {
	Matches(ctx context.Context, kind cricbuzz.ListKind, cursor string) (cricbuzz.MatchListing, error)
	Scorecard(ctx context.Context, matchID int64) (provider.Scorecard, error)
	SearchPlayers(ctx context.Context, name string) ([]provider.Player, error)
	PlayerProfile(ctx context.Context, playerID int64) (provider.Player, error)
	PlayerStats(ctx context.Context, playerID int64, kind string) (provider.PlayerStats, error)
	Limiter() *cricbuzz.Limiter
	Trace() *cricbuzz.Trace
}

// Deps are the handler dependencies.
type Deps struct {
	DB     DB
	ETL    ETL
	Live   Live
	Cache  *cache.Cache
	Policy analytics.Policy
	Logger *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db     DB
	etl    ETL
	live   Live
	cache  *cache.Cache
	crud   *crud.Store
	policy analytics.Policy
	logger *slog.Logger
}

// New creates a Handler.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := d.Cache
	if c == nil {
		c = cache.New(false)
	}
	return &Handler{
		db:     d.DB,
		etl:    d.ETL,
		live:   d.Live,
		cache:  c,
		crud:   crud.NewStore(d.DB),
		policy: d.Policy,
		logger: logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{
		"name":    "Cricket Live Stats API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"metrics": "/metrics",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics and provider call usage.
// @Summary Cache health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.live != nil {
		body["api_usage"] = h.live.Limiter().Usage()
	}
	respond.JSON(w, http.StatusOK, body)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "INVALID_ID", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respond.Error(w, http.StatusBadRequest, "INVALID_PARAM", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// providerError renders a provider failure. noData is the status used when
// the provider had nothing for the request.
func (h *Handler) providerError(w http.ResponseWriter, err error, noData int) {
	hint := cricbuzz.Hint(err)
	switch cricbuzz.KindOf(err) {
	case cricbuzz.KindRateLimited:
		if hint == "" {
			hint = "wait about a minute before retrying"
		}
		w.Header().Set("Retry-After", "60")
		respond.ErrorHint(w, http.StatusTooManyRequests, "RATE_LIMITED", "the provider is rate limiting requests", hint)
	case cricbuzz.KindFatal:
		respond.ErrorHint(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", err.Error(), hint)
	case cricbuzz.KindCanceled:
		respond.Error(w, http.StatusGatewayTimeout, "CANCELED", "request canceled before the provider answered")
	case cricbuzz.KindMalformed:
		respond.ErrorHint(w, http.StatusBadGateway, "API_ERROR", "the provider returned an unreadable response", "retry in a few seconds")
	default:
		if noData == http.StatusNotFound {
			respond.Error(w, http.StatusNotFound, "NOT_FOUND", "the provider has no data for this request")
			return
		}
		if hint == "" {
			hint = "retry in a few seconds"
		}
		respond.ErrorHint(w, noData, "API_ERROR", "the provider request failed", hint)
	}
	h.logger.Warn("Provider request failed", "error", err)
}

// serveCached answers from the cache when possible, otherwise renders v
// with fetch, stores it, and writes it.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, fetch func() (any, error), noData int) {
	if data, etag, ok := h.cache.Get(r.Context(), key); ok {
		if cache.Matches(r.Header.Get("If-None-Match"), etag) {
			respond.NotModified(w, etag)
			return
		}
		respond.Cached(w, data, etag, ttl, true)
		return
	}

	v, err := fetch()
	if err != nil {
		h.providerError(w, err, noData)
		return
	}
	data, err := marshal(v)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "ENCODE_ERROR", "failed to encode response")
		return
	}
	etag := h.cache.Set(r.Context(), key, data, ttl)
	respond.Cached(w, data, etag, ttl, false)
}
