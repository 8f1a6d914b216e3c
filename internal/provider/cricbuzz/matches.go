package cricbuzz

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/provider"
)

// victoryTypeMaxLen bounds matches.victory_type.
const victoryTypeMaxLen = 50

// --------------------------------------------------------------------------
// Raw shapes
// --------------------------------------------------------------------------

type rawVenue struct {
	ID       provider.Int  `json:"id"`
	Ground   provider.Text `json:"ground"`
	Name     provider.Text `json:"name"`
	City     provider.Text `json:"city"`
	Country  provider.Text `json:"country"`
	Capacity provider.Int  `json:"capacity"`
}

func (r rawVenue) normalize() (provider.Venue, bool) {
	name := provider.FirstText(r.Ground, r.Name)
	if name == "" {
		return provider.Venue{}, false
	}
	v := provider.Venue{
		Name:    name,
		City:    string(r.City),
		Country: string(r.Country),
	}
	if r.ID.Valid && r.ID.V > 0 {
		v.ID = r.ID.V
	}
	if r.Capacity.Valid && r.Capacity.V > 0 {
		v.Capacity = r.Capacity.IntPtr()
	}
	return v, true
}

type rawToss struct {
	TossWinnerID provider.Int  `json:"tossWinnerId"`
	WinnerID     provider.Int  `json:"winnerId"`
	Decision     provider.Text `json:"decision"`
	TossDecision provider.Text `json:"tossDecision"`
}

func (t rawToss) winner() provider.Int {
	return positive(provider.FirstInt(t.TossWinnerID, t.WinnerID))
}

func (t rawToss) decision() string {
	return provider.FirstText(t.Decision, t.TossDecision)
}

type rawResult struct {
	ResultMargin  provider.Text `json:"resultMargin"`
	Margin        provider.Text `json:"margin"`
	ResultType    provider.Text `json:"resultType"`
	VictoryType   provider.Text `json:"victoryType"`
	WinningTeamID provider.Int  `json:"winningteamId"`
	WinningMargin provider.Int  `json:"winningMargin"`
	WinByRuns     provider.Bool `json:"winByRuns"`
	WinByInnings  provider.Bool `json:"winByInnings"`
}

// structured reads the numeric margin fields the match center uses. They say
// "runs" or "wickets" outright, which beats a generic resultType of "win".
func (r rawResult) structured() (margin, kind string) {
	if !r.WinningMargin.Valid || !r.WinByRuns.Valid {
		return "", ""
	}
	if r.WinByRuns.V || (r.WinByInnings.Valid && r.WinByInnings.V) {
		return fmt.Sprintf("%d runs", r.WinningMargin.V), "runs"
	}
	return fmt.Sprintf("%d wickets", r.WinningMargin.V), "wickets"
}

// outcome resolves margin and victory type from a result block, a raw
// margin fallback, and the free-text status line.
func (r rawResult) outcome(winMargin provider.Text, status string) (margin, kind string) {
	sMargin, sKind := r.structured()
	tMargin, tKind := parseStatus(status)
	margin = firstNonEmpty(sMargin, string(r.ResultMargin), string(r.Margin), string(winMargin), tMargin)
	kind = firstNonEmpty(sKind, string(r.ResultType), string(r.VictoryType), tKind, status)
	return margin, provider.Truncate(kind, victoryTypeMaxLen)
}

type winnerRef struct {
	TeamID provider.Int `json:"teamId"`
}

type rawMatch struct {
	MatchID          provider.Int               `json:"matchId"`
	ID               provider.Int               `json:"id"`
	SeriesID         provider.Int               `json:"seriesId"`
	SeriesName       provider.Text              `json:"seriesName"`
	MatchDesc        provider.Text              `json:"matchDesc"`
	MatchDescription provider.Text              `json:"matchDescription"`
	MatchFormat      provider.Text              `json:"matchFormat"`
	Format           provider.Text              `json:"format"`
	MatchDate        provider.Date              `json:"matchDate"`
	StartDate        provider.Date              `json:"startDate"`
	StartTime        provider.Date              `json:"startTime"`
	State            provider.Text              `json:"state"`
	Status           provider.Text              `json:"status"`
	Team1            provider.Object[rawTeam]   `json:"team1"`
	Team2            provider.Object[rawTeam]   `json:"team2"`
	VenueInfo        provider.Object[rawVenue]  `json:"venueInfo"`
	Venue            provider.Object[rawVenue]  `json:"venue"`
	MatchWinner      provider.Object[winnerRef] `json:"matchWinner"`
	WinnerTeamID     provider.Int               `json:"winnerTeamId"`
	TossResults      provider.Object[rawToss]   `json:"tossResults"`
	Toss             provider.Object[rawToss]   `json:"toss"`
	Result           provider.Object[rawResult] `json:"result"`
	WinMargin        provider.Text              `json:"winMargin"`
}

func (r rawMatch) id() provider.Int {
	return positive(provider.FirstInt(r.MatchID, r.ID))
}

// normalize converts a list/detail match object. seriesID, when non-zero,
// overrides whatever the object says about its parent.
func (r rawMatch) normalize(seriesID int64) (provider.Match, bool) {
	id := r.id()
	if !id.Valid {
		return provider.Match{}, false
	}
	m := provider.Match{
		ID:         id.V,
		SeriesID:   positive(r.SeriesID).Ptr(),
		SeriesName: string(r.SeriesName),
		Date:       provider.FirstDate(r.MatchDate, r.StartDate, r.StartTime),
		Format:     provider.FirstText(r.MatchFormat, r.Format),
		State:      string(r.State),
		Status:     string(r.Status),
	}
	if seriesID > 0 {
		sid := seriesID
		m.SeriesID = &sid
	}
	m.Description = provider.FirstText(r.MatchDescription, r.MatchDesc, r.SeriesName, r.Status)

	if r.Team1.Valid {
		if t, ok := r.Team1.V.normalize(); ok {
			m.Team1 = &t
		}
	}
	if r.Team2.Valid {
		if t, ok := r.Team2.V.normalize(); ok {
			m.Team2 = &t
		}
	}
	for _, v := range []provider.Object[rawVenue]{r.VenueInfo, r.Venue} {
		if !v.Valid {
			continue
		}
		if venue, ok := v.V.normalize(); ok {
			m.Venue = &venue
			break
		}
	}

	winner := provider.Int{}
	if r.MatchWinner.Valid {
		winner = positive(r.MatchWinner.V.TeamID)
	}
	m.WinnerID = provider.FirstInt(winner, positive(r.WinnerTeamID), positive(r.Result.V.WinningTeamID)).Ptr()

	toss := r.TossResults
	if !toss.Valid {
		toss = r.Toss
	}
	m.TossWinnerID = toss.V.winner().Ptr()
	m.TossDecision = toss.V.decision()

	m.WinMargin, m.VictoryType = r.Result.V.outcome(r.WinMargin, m.Status)
	return m, true
}

type rawMatchHeader struct {
	WinningTeamID provider.Int               `json:"winningTeamId"`
	TossResults   provider.Object[rawToss]   `json:"tossResults"`
	Result        provider.Object[rawResult] `json:"result"`
	Status        provider.Text              `json:"status"`
	State         provider.Text              `json:"state"`
}

type matchCenterPayload struct {
	MatchHeader provider.Object[rawMatchHeader] `json:"matchHeader"`
	MatchInfo   provider.Object[rawMatch]       `json:"matchInfo"`
}

type rawInnings struct {
	InningsID provider.Int   `json:"inningsId"`
	Runs      provider.Int   `json:"runs"`
	Wickets   provider.Int   `json:"wickets"`
	Overs     provider.Float `json:"overs"`
}

type rawTeamScore struct {
	Inngs1 provider.Object[rawInnings] `json:"inngs1"`
	Inngs2 provider.Object[rawInnings] `json:"inngs2"`
}

type rawMatchScore struct {
	Team1Score provider.Object[rawTeamScore] `json:"team1Score"`
	Team2Score provider.Object[rawTeamScore] `json:"team2Score"`
}

// matchWrapper covers the three ways a match shows up in a list: wrapped in
// "matchInfo", wrapped in "match", or bare.
type matchWrapper struct {
	rawMatch
	MatchInfo  provider.Object[rawMatch]      `json:"matchInfo"`
	Match      provider.Object[rawMatch]      `json:"match"`
	MatchScore provider.Object[rawMatchScore] `json:"matchScore"`
}

func (w matchWrapper) info() rawMatch {
	switch {
	case w.MatchInfo.Valid:
		return w.MatchInfo.V
	case w.Match.Valid:
		return w.Match.V
	default:
		return w.rawMatch
	}
}

func (w matchWrapper) scores(m provider.Match) []provider.InningsScore {
	if !w.MatchScore.Valid {
		return nil
	}
	var out []provider.InningsScore
	add := func(team *provider.Team, ts provider.Object[rawTeamScore]) {
		if team == nil || !ts.Valid {
			return
		}
		for n, inn := range []provider.Object[rawInnings]{ts.V.Inngs1, ts.V.Inngs2} {
			if !inn.Valid {
				continue
			}
			no := n + 1
			if inn.V.InningsID.Valid {
				no = int(inn.V.InningsID.V)
			}
			out = append(out, provider.InningsScore{
				TeamID:  team.ID,
				Innings: no,
				Runs:    inn.V.Runs.IntPtr(),
				Wickets: inn.V.Wickets.IntPtr(),
				Overs:   inn.V.Overs.Ptr(),
			})
		}
	}
	add(m.Team1, w.MatchScore.V.Team1Score)
	add(m.Team2, w.MatchScore.V.Team2Score)
	return out
}

// seriesGroup is one series block inside a listing bucket.
type seriesGroup struct {
	SeriesID   provider.Int                `json:"seriesId"`
	SeriesName provider.Text               `json:"seriesName"`
	Matches    provider.List[matchWrapper] `json:"matches"`
}

type seriesMatches struct {
	seriesGroup
	SeriesAdWrapper provider.Object[seriesGroup] `json:"seriesAdWrapper"`
}

func (s seriesMatches) group() seriesGroup {
	if s.SeriesAdWrapper.Valid {
		return s.SeriesAdWrapper.V
	}
	return s.seriesGroup
}

type typeMatches struct {
	MatchType     provider.Text                `json:"matchType"`
	SeriesMatches provider.List[seriesMatches] `json:"seriesMatches"`
}

type listingPayload struct {
	matchWrapper
	TypeMatches provider.List[typeMatches] `json:"typeMatches"`
	Next        provider.Text              `json:"next"`
	Cursor      provider.Text              `json:"cursor"`
}

// --------------------------------------------------------------------------
// Listings
// --------------------------------------------------------------------------

// ListKind selects one of the match listings.
type ListKind string

const (
	ListLive     ListKind = "live"
	ListRecent   ListKind = "recent"
	ListUpcoming ListKind = "upcoming"
)

// ParseListKind validates a listing name.
func ParseListKind(s string) (ListKind, error) {
	switch k := ListKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ListLive, ListRecent, ListUpcoming:
		return k, nil
	}
	return "", errors.WithHint(errors.Newf("unknown match listing %q", s), "use live, recent, or upcoming")
}

// Keep reports whether a match in the given state belongs in the listing.
// The provider's listings leak matches across buckets, so every listing is
// filtered by state after the fetch.
func (k ListKind) Keep(state string) bool {
	s := strings.ToLower(strings.TrimSpace(state))
	switch k {
	case ListLive:
		return s != "complete" && s != "finished" && s != "upcoming"
	case ListRecent:
		return s == "complete" || s == "finished"
	case ListUpcoming:
		return s == "upcoming" || s == "preview"
	}
	return false
}

// Filter returns the matches Keep accepts.
func (k ListKind) Filter(ms []provider.LiveMatch) []provider.LiveMatch {
	out := make([]provider.LiveMatch, 0, len(ms))
	for _, m := range ms {
		if k.Keep(m.State) {
			out = append(out, m)
		}
	}
	return out
}

// MatchListing is one page of a live/recent/upcoming listing.
type MatchListing struct {
	Series  []provider.Series
	Matches []provider.LiveMatch
	Cursor  string
}

// ParseMatchListing extracts matches from a listing page. The bucketed
// typeMatches shape, a bare list of matches, and a single match object are
// all accepted. Matches inherit the id and name of the series block they sit
// in, and each distinct series is reported once as a stub.
func ParseMatchListing(body []byte) (MatchListing, error) {
	var out MatchListing
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list provider.List[matchWrapper]
		if err := sonic.Unmarshal(trimmed, &list); err != nil {
			return out, errors.Wrapf(ErrMalformed, "match listing: %v", err)
		}
		for _, w := range list {
			out.addMatch(w, 0, "")
		}
		return out, nil
	}

	var p listingPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return out, errors.Wrapf(ErrMalformed, "match listing: %v", err)
	}
	out.Cursor = provider.FirstText(p.Next, p.Cursor)

	seen := map[int64]bool{}
	for _, tm := range p.TypeMatches {
		for _, sm := range tm.SeriesMatches {
			g := sm.group()
			sid := positive(g.SeriesID)
			if sid.Valid && !seen[sid.V] {
				seen[sid.V] = true
				out.Series = append(out.Series, provider.Series{ID: sid.V, Name: string(g.SeriesName)})
			}
			for _, w := range g.Matches {
				out.addMatch(w, sid.V, string(g.SeriesName))
			}
		}
	}
	if len(p.TypeMatches) == 0 && p.matchWrapper.info().id().Valid {
		out.addMatch(p.matchWrapper, 0, "")
	}
	return out, nil
}

func (l *MatchListing) addMatch(w matchWrapper, seriesID int64, seriesName string) {
	m, ok := w.info().normalize(seriesID)
	if !ok {
		return
	}
	if m.SeriesName == "" {
		m.SeriesName = seriesName
	}
	l.Matches = append(l.Matches, provider.LiveMatch{Match: m, Scores: w.scores(m)})
}

// --------------------------------------------------------------------------
// Match center
// --------------------------------------------------------------------------

// ParseMatchCenter extracts the result fields of a match-center payload.
func ParseMatchCenter(body []byte) (provider.MatchResult, error) {
	var p matchCenterPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return provider.MatchResult{}, errors.Wrapf(ErrMalformed, "match center: %v", err)
	}
	if !p.MatchHeader.Valid {
		if p.MatchInfo.Valid {
			m, _ := p.MatchInfo.V.normalize(0)
			return provider.MatchResult{
				WinnerID:     m.WinnerID,
				WinMargin:    m.WinMargin,
				VictoryType:  m.VictoryType,
				TossWinnerID: m.TossWinnerID,
				TossDecision: m.TossDecision,
			}, nil
		}
		return provider.MatchResult{}, errors.Wrap(ErrNoData, "match center without header")
	}
	h := p.MatchHeader.V
	res := h.Result.V
	margin, kind := res.outcome("", string(h.Status))
	return provider.MatchResult{
		WinnerID:     provider.FirstInt(positive(h.WinningTeamID), positive(res.WinningTeamID)).Ptr(),
		WinMargin:    margin,
		VictoryType:  kind,
		TossWinnerID: h.TossResults.V.winner().Ptr(),
		TossDecision: h.TossResults.V.decision(),
	}, nil
}

// --------------------------------------------------------------------------
// Endpoints
// --------------------------------------------------------------------------

// Matches fetches one page of a match listing and filters it by state.
func (c *Client) Matches(ctx context.Context, kind ListKind, cursor string) (MatchListing, error) {
	var params url.Values
	if cursor != "" {
		params = url.Values{"cursor": {cursor}}
	}
	body, err := c.get(ctx, "matches_"+string(kind), "/matches/v1/"+string(kind), params)
	if err != nil {
		return MatchListing{}, err
	}
	l, err := ParseMatchListing(body)
	if err != nil {
		return MatchListing{}, err
	}
	l.Matches = kind.Filter(l.Matches)
	return l, nil
}

// MatchCenter fetches the match-center summary used to backfill results.
func (c *Client) MatchCenter(ctx context.Context, matchID int64) (provider.MatchResult, error) {
	body, err := c.get(ctx, "mcenter", fmt.Sprintf("/mcenter/v1/%d", matchID), nil)
	if err != nil {
		return provider.MatchResult{}, err
	}
	return ParseMatchCenter(body)
}

// Venue fetches a venue's details, including the capacity that match
// listings leave out.
func (c *Client) Venue(ctx context.Context, venueID int64) (provider.Venue, error) {
	var r rawVenue
	if err := c.getJSON(ctx, "venue", fmt.Sprintf("/venues/v1/%d", venueID), nil, &r); err != nil {
		return provider.Venue{}, err
	}
	v, ok := r.normalize()
	if !ok {
		return provider.Venue{}, errors.Wrapf(ErrNoData, "venue %d has no name", venueID)
	}
	v.ID = venueID
	return v, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

var statusMargin = regexp.MustCompile(`(?i)won by (?:an innings and )?(\d+)\s*(runs?|wkts?|wickets?)`)

// parseStatus pulls "N runs" / "N wickets" out of a status line such as
// "India won by 6 wkts".
func parseStatus(status string) (margin, kind string) {
	m := statusMargin.FindStringSubmatch(status)
	if m == nil {
		return "", ""
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "run") {
		return m[1] + " runs", "runs"
	}
	return m[1] + " wickets", "wickets"
}

func positive(i provider.Int) provider.Int {
	if !i.Valid || i.V <= 0 {
		return provider.Int{}
	}
	return i
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
