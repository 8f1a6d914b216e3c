package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/albapepper/cricket-livestats/internal/api/respond"
	"github.com/albapepper/cricket-livestats/internal/cache"
	"github.com/albapepper/cricket-livestats/internal/provider"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
)

// SearchPlayers searches the provider's players by name.
// @Summary Search players
// @Tags players
// @Produce json
// @Param q query string true "Name fragment"
// @Success 200 {array} provider.Player
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/players/search [get]
func (h *Handler) SearchPlayers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respond.Error(w, http.StatusBadRequest, "INVALID_PARAM", "q is required")
		return
	}
	h.serveCached(w, r, "players/search/"+strings.ToLower(q), cache.TTLPlayer, func() (any, error) {
		ps, err := h.live.SearchPlayers(r.Context(), q)
		if err != nil {
			return nil, err
		}
		if ps == nil {
			ps = []provider.Player{}
		}
		return ps, nil
	}, http.StatusBadGateway)
}

// PlayerProfile serves a player's profile.
// @Summary Player profile
// @Tags players
// @Produce json
// @Param playerID path int true "Cricbuzz player id"
// @Success 200 {object} provider.Player
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/players/{playerID} [get]
func (h *Handler) PlayerProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	h.serveCached(w, r, "players/"+strconv.FormatInt(id, 10), cache.TTLPlayer, func() (any, error) {
		return h.live.PlayerProfile(r.Context(), id)
	}, http.StatusNotFound)
}

// PlayerStats serves a player's batting and bowling career tables. kind
// narrows the response to one of them, or asks for the per-format career
// span (debut and last played).
// @Summary Player career stats
// @Tags players
// @Produce json
// @Param playerID path int true "Cricbuzz player id"
// @Param kind query string false "batting, bowling or career" Enums(batting, bowling, career)
// @Success 200 {object} map[string]provider.PlayerStats
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/players/{playerID}/stats [get]
func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	kinds := []string{cricbuzz.StatsBatting, cricbuzz.StatsBowling}
	switch k := r.URL.Query().Get("kind"); k {
	case "":
	case cricbuzz.StatsBatting, cricbuzz.StatsBowling, cricbuzz.StatsCareer:
		kinds = []string{k}
	default:
		respond.Error(w, http.StatusBadRequest, "INVALID_PARAM", "kind must be batting, bowling or career")
		return
	}

	key := "players/" + strconv.FormatInt(id, 10) + "/stats/" + strings.Join(kinds, "+")
	h.serveCached(w, r, key, cache.TTLPlayer, func() (any, error) {
		out := make(map[string]provider.PlayerStats, len(kinds))
		for _, k := range kinds {
			st, err := h.live.PlayerStats(r.Context(), id, k)
			if err != nil {
				return nil, err
			}
			out[k] = st
		}
		return out, nil
	}, http.StatusNotFound)
}
