package handler

import (
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/albapepper/cricket-livestats/internal/api/respond"
	"github.com/albapepper/cricket-livestats/internal/cache"
	"github.com/albapepper/cricket-livestats/internal/provider"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
)

func marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// Matches serves a live, recent, or upcoming listing. An empty listing is
// a 200 with an empty array; provider failures are never rendered as empty.
// @Summary Match listing
// @Tags matches
// @Produce json
// @Param match path string true "live, recent, or upcoming"
// @Success 200 {array} provider.LiveMatch
// @Failure 400 {object} respond.ErrorResponse
// @Failure 429 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/matches/{match} [get]
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	kind, err := cricbuzz.ParseListKind(chi.URLParam(r, "match"))
	if err != nil {
		respond.ErrorHint(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), cricbuzz.Hint(err))
		return
	}
	h.serveCached(w, r, "matches/"+string(kind), cache.TTLListing, func() (any, error) {
		l, err := h.live.Matches(r.Context(), kind, "")
		if err != nil {
			return nil, err
		}
		if l.Matches == nil {
			return []provider.LiveMatch{}, nil
		}
		return l.Matches, nil
	}, http.StatusBadGateway)
}

// Scorecard serves a normalized match scorecard.
// @Summary Match scorecard
// @Tags matches
// @Produce json
// @Param match path int true "Cricbuzz match id"
// @Success 200 {object} provider.Scorecard
// @Failure 404 {object} respond.ErrorResponse
// @Failure 429 {object} respond.ErrorResponse
// @Router /api/v1/matches/{match}/scorecard [get]
func (h *Handler) Scorecard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "match")
	if !ok {
		return
	}
	h.serveCached(w, r, "scorecard/"+strconv.FormatInt(id, 10), cache.TTLScorecard, func() (any, error) {
		return h.live.Scorecard(r.Context(), id)
	}, http.StatusNotFound)
}
