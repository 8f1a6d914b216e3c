package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/analytics"
	"github.com/albapepper/cricket-livestats/internal/api/respond"
	"github.com/albapepper/cricket-livestats/internal/seed"
)

// ETLResponse wraps a routine's result with the view rebuild outcome.
type ETLResponse struct {
	Status       string          `json:"status"`
	Summary      string          `json:"summary"`
	Result       seed.SeedResult `json:"result"`
	ViewsCreated bool            `json:"views_created"`
	ViewsError   string          `json:"views_error,omitempty"`
}

// runETL rejects the request while another run is active, otherwise runs fn
// and writes its result. Views are rebuilt afterwards when rebuild is set
// and the run was not aborted.
func (h *Handler) runETL(w http.ResponseWriter, r *http.Request, rebuild bool, fn func(ctx context.Context) seed.SeedResult) {
	if h.etl.Busy() {
		respond.ErrorHint(w, http.StatusConflict, "RUN_IN_PROGRESS", "an ETL run is already in progress", "wait for it to finish")
		return
	}

	res := fn(r.Context())
	if errors.Is(res.Err(), seed.ErrRunInProgress) {
		respond.ErrorHint(w, http.StatusConflict, "RUN_IN_PROGRESS", "an ETL run is already in progress", "wait for it to finish")
		return
	}

	out := ETLResponse{Status: res.Status(), Summary: res.Summary(), Result: res}
	if rebuild && res.Status() != "aborted" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Minute)
		defer cancel()
		if err := analytics.CreateViews(ctx, h.db, h.policy, h.logger); err != nil {
			h.logger.Error("View rebuild failed", "error", err)
			out.ViewsError = err.Error()
		} else {
			out.ViewsCreated = true
		}
	}

	status := http.StatusOK
	if res.Status() == "aborted" {
		status = http.StatusBadGateway
	}
	respond.JSON(w, status, out)
}

// Backfill discovers series from the current and archived listings.
// @Summary Backfill series
// @Tags etl
// @Produce json
// @Param from_year query int false "Skip series that started before this year" default(2020)
// @Param max_pages query int false "Page ceiling per listing, 0 for none" default(5)
// @Success 200 {object} ETLResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/etl/backfill [post]
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	fromYear, ok := queryInt(w, r, "from_year", 2020)
	if !ok {
		return
	}
	maxPages, ok := queryInt(w, r, "max_pages", 5)
	if !ok {
		return
	}
	h.runETL(w, r, true, func(ctx context.Context) seed.SeedResult {
		return h.etl.Backfill(ctx, fromYear, maxPages)
	})
}

// Refresh loads recently completed matches.
// @Summary Incremental refresh
// @Tags etl
// @Produce json
// @Param max_pages query int false "Page ceiling, 0 for none" default(3)
// @Success 200 {object} ETLResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/etl/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	maxPages, ok := queryInt(w, r, "max_pages", 3)
	if !ok {
		return
	}
	h.runETL(w, r, true, func(ctx context.Context) seed.SeedResult {
		return h.etl.IncrementalRefresh(ctx, maxPages)
	})
}

// LoadTeams loads international teams and their rosters.
// @Summary Load teams and players
// @Tags etl
// @Produce json
// @Success 200 {object} ETLResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/etl/teams [post]
func (h *Handler) LoadTeams(w http.ResponseWriter, r *http.Request) {
	h.runETL(w, r, false, h.etl.LoadTeamsAndPlayers)
}

// LoadSeries deep-loads one series.
// @Summary Deep-load a series
// @Tags etl
// @Produce json
// @Param seriesID path int true "Cricbuzz series id"
// @Success 200 {object} ETLResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/etl/series/{seriesID} [post]
func (h *Handler) LoadSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "seriesID")
	if !ok {
		return
	}
	h.runETL(w, r, true, func(ctx context.Context) seed.SeedResult {
		return h.etl.LoadSeriesDeep(ctx, id)
	})
}

// Trace returns provider call usage and the most recent calls.
// @Summary Provider call trace
// @Tags etl
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/etl/trace [get]
func (h *Handler) Trace(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{
		"usage": h.live.Limiter().Usage(),
		"calls": h.live.Trace().Entries(),
	})
}

// State returns the etl_state table.
// @Summary ETL state
// @Tags etl
// @Produce json
// @Success 200 {array} seed.StateEntry
// @Router /api/v1/etl/state [get]
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	entries, err := seed.LoadState(r.Context(), h.db)
	if err != nil {
		h.logger.Error("Load ETL state failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "DB_ERROR", "failed to load ETL state")
		return
	}
	respond.JSON(w, http.StatusOK, entries)
}
