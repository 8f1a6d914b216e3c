package handler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/cricket-livestats/internal/analytics"
	"github.com/albapepper/cricket-livestats/internal/api/respond"
)

// QueryInfo describes one registered analytics query.
type QueryInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	View  string `json:"view"`
	SQL   string `json:"sql"`
}

func infoOf(q analytics.Query) QueryInfo {
	return QueryInfo{ID: q.ID, Title: q.Title, View: q.View, SQL: q.SQL()}
}

// ListQueries lists the analytics queries.
// @Summary List analytics queries
// @Tags queries
// @Produce json
// @Success 200 {array} QueryInfo
// @Router /api/v1/queries [get]
func (h *Handler) ListQueries(w http.ResponseWriter, r *http.Request) {
	reg := analytics.Registry()
	out := make([]QueryInfo, len(reg))
	for i, q := range reg {
		out[i] = infoOf(q)
	}
	respond.JSON(w, http.StatusOK, out)
}

// QuerySQL returns the view definition and the select behind a query.
// @Summary Show query SQL
// @Tags queries
// @Produce json
// @Param queryID path string true "Query id, e.g. Q7"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/queries/{queryID}/sql [get]
func (h *Handler) QuerySQL(w http.ResponseWriter, r *http.Request) {
	q, ok := analytics.Lookup(chi.URLParam(r, "queryID"))
	if !ok {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "unknown query")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"query":      infoOf(q),
		"definition": q.Definition(h.policy),
	})
}

// RunQuery executes an analytics query.
// @Summary Run an analytics query
// @Tags queries
// @Produce json
// @Param queryID path string true "Query id, e.g. Q7"
// @Success 200 {object} analytics.Result
// @Failure 404 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/queries/{queryID} [get]
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "queryID")
	if _, ok := analytics.Lookup(id); !ok {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "unknown query")
		return
	}

	res, err := analytics.Run(r.Context(), h.db, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			respond.ErrorHint(w, http.StatusServiceUnavailable, "VIEWS_MISSING", "analytics views have not been created",
				"run `ingest views` or any ETL routine first")
			return
		}
		h.logger.Error("Analytics query failed", "query", id, "error", err)
		respond.Error(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to run query")
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
