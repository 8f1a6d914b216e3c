package cricbuzz

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/provider"
)

// --------------------------------------------------------------------------
// Raw shapes
// --------------------------------------------------------------------------

type rawBatter struct {
	PlayerID     provider.Int   `json:"playerId"`
	ID           provider.Int   `json:"id"`
	BatID        provider.Int   `json:"batId"`
	Name         provider.Text  `json:"name"`
	BatName      provider.Text  `json:"batName"`
	Runs         provider.Int   `json:"runs"`
	Balls        provider.Int   `json:"balls"`
	BallsFaced   provider.Int   `json:"ballsFaced"`
	Fours        provider.Int   `json:"fours"`
	Sixes        provider.Int   `json:"sixes"`
	StrkRate     provider.Float `json:"strkrate"`
	StrikeRate   provider.Float `json:"strikeRate"`
	SR           provider.Float `json:"sr"`
	TeamID       provider.Int   `json:"teamId"`
	TeamName     provider.Text  `json:"teamName"`
	Team         provider.Text  `json:"team"`
	BattingOrder provider.Int   `json:"battingOrder"`
	Order        provider.Int   `json:"order"`
	IsOut        provider.Bool  `json:"isOut"`
	OutDesc      provider.Text  `json:"outDesc"`
	OutDec       provider.Text  `json:"outdec"`
}

func (r rawBatter) id() provider.Int {
	return positive(provider.FirstInt(r.PlayerID, r.ID, r.BatID))
}

// normalize builds a batting entry. teamID is the batting side from the
// innings card (0 when unknown); pos is the batter's order from the card
// layout (0 when unknown).
func (r rawBatter) normalize(innings int, teamID int64, teamName string, pos int) (provider.BattingEntry, bool) {
	id := r.id()
	if !id.Valid {
		return provider.BattingEntry{}, false
	}
	e := provider.BattingEntry{
		PlayerID:   id.V,
		PlayerName: provider.FirstText(r.Name, r.BatName),
		Innings:    innings,
		Runs:       int(r.Runs.V),
		Balls:      int(provider.FirstInt(r.Balls, r.BallsFaced).V),
		Fours:      int(r.Fours.V),
		Sixes:      int(r.Sixes.V),
		StrikeRate: provider.FirstFloat(r.StrkRate, r.StrikeRate, r.SR).Ptr(),
		TeamName:   provider.FirstText(r.TeamName, r.Team),
		IsOut:      r.isOut(),
	}
	if e.StrikeRate == nil && e.Balls > 0 {
		sr := provider.Round(float64(e.Runs)/float64(e.Balls)*100, 2)
		e.StrikeRate = &sr
	}

	switch {
	case teamID > 0:
		e.TeamID = &teamID
	case positive(r.TeamID).Valid:
		e.TeamID = r.TeamID.Ptr()
	}
	if e.TeamName == "" {
		e.TeamName = teamName
	}

	if pos > 0 {
		e.Position = &pos
	} else {
		e.Position = positive(provider.FirstInt(r.BattingOrder, r.Order)).IntPtr()
	}
	return e, true
}

// isOut reads an explicit flag when present, otherwise the dismissal text:
// "not out" means false, any other text means true, no text means unknown.
func (r rawBatter) isOut() *bool {
	if r.IsOut.Valid {
		return r.IsOut.Ptr()
	}
	desc := strings.ToLower(provider.FirstText(r.OutDesc, r.OutDec))
	if desc == "" {
		return nil
	}
	out := !strings.Contains(desc, "not out")
	return &out
}

type rawBowler struct {
	PlayerID provider.Int   `json:"playerId"`
	ID       provider.Int   `json:"id"`
	BowlerID provider.Int   `json:"bowlerId"`
	Name     provider.Text  `json:"name"`
	BowlName provider.Text  `json:"bowlName"`
	Overs    provider.Float `json:"overs"`
	O        provider.Float `json:"o"`
	Maidens  provider.Int   `json:"maidens"`
	M        provider.Int   `json:"m"`
	Runs     provider.Int   `json:"runs"`
	R        provider.Int   `json:"r"`
	Wickets  provider.Int   `json:"wickets"`
	W        provider.Int   `json:"w"`
	Economy  provider.Float `json:"economy"`
	Eco      provider.Float `json:"eco"`
}

func (r rawBowler) normalize(innings int, teamID int64, teamName string) (provider.BowlingEntry, bool) {
	id := positive(provider.FirstInt(r.PlayerID, r.ID, r.BowlerID))
	if !id.Valid {
		return provider.BowlingEntry{}, false
	}
	e := provider.BowlingEntry{
		PlayerID:   id.V,
		PlayerName: provider.FirstText(r.Name, r.BowlName),
		TeamName:   teamName,
		Innings:    innings,
		Overs:      provider.FirstFloat(r.Overs, r.O).V,
		Maidens:    int(provider.FirstInt(r.Maidens, r.M).V),
		Runs:       int(provider.FirstInt(r.Runs, r.R).V),
		Wickets:    int(provider.FirstInt(r.Wickets, r.W).V),
		Economy:    provider.FirstFloat(r.Economy, r.Eco).Ptr(),
	}
	if teamID > 0 {
		e.TeamID = &teamID
	}
	return e, true
}

type rawPartnership struct {
	Player1ID    provider.Int `json:"player1Id"`
	P1ID         provider.Int `json:"p1Id"`
	StrikerID    provider.Int `json:"strikerId"`
	Bat1ID       provider.Int `json:"bat1Id"`
	Bat1IDLower  provider.Int `json:"bat1id"`
	Player2ID    provider.Int `json:"player2Id"`
	P2ID         provider.Int `json:"p2Id"`
	NonStriker   provider.Int `json:"nonStrikerId"`
	Bat2ID       provider.Int `json:"bat2Id"`
	Bat2IDLower  provider.Int `json:"bat2id"`
	Runs         provider.Int `json:"runs"`
	R            provider.Int `json:"r"`
	TotalRuns    provider.Int `json:"totalRuns"`
	TotalRunsLow provider.Int `json:"totalruns"`
	Balls        provider.Int `json:"balls"`
	B            provider.Int `json:"b"`
	TotalBalls   provider.Int `json:"totalBalls"`
	TotalBallsLo provider.Int `json:"totalballs"`
}

func (r rawPartnership) normalize(innings int) (provider.PartnershipEntry, bool) {
	p1 := positive(provider.FirstInt(r.Player1ID, r.P1ID, r.StrikerID, r.Bat1ID, r.Bat1IDLower))
	p2 := positive(provider.FirstInt(r.Player2ID, r.P2ID, r.NonStriker, r.Bat2ID, r.Bat2IDLower))
	if !p1.Valid || !p2.Valid {
		return provider.PartnershipEntry{}, false
	}
	return provider.PartnershipEntry{
		Innings:   innings,
		Player1ID: p1.V,
		Player2ID: p2.V,
		Runs:      int(provider.FirstInt(r.Runs, r.R, r.TotalRuns, r.TotalRunsLow).V),
		Balls:     int(provider.FirstInt(r.Balls, r.B, r.TotalBalls, r.TotalBallsLo).V),
	}, true
}

// partnershipList accepts partnerships as a list, a keyed object
// ({"pat_1": {...}}), or a wrapper object holding the list under
// "partnership".
type partnershipList []rawPartnership

// UnmarshalJSON implements json.Unmarshaler.
func (l *partnershipList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		var list provider.List[rawPartnership]
		_ = list.UnmarshalJSON(b)
		*l = partnershipList(list)
	case '{':
		var wrapped struct {
			Partnership provider.List[rawPartnership] `json:"partnership"`
		}
		if err := sonic.Unmarshal(b, &wrapped); err == nil && len(wrapped.Partnership) > 0 {
			*l = partnershipList(wrapped.Partnership)
			return nil
		}
		var keyed provider.Dict[rawPartnership]
		_ = keyed.UnmarshalJSON(b)
		for _, k := range orderedKeys(keyed) {
			*l = append(*l, keyed[k])
		}
	}
	return nil
}

type rawFielder struct {
	PlayerID  provider.Int  `json:"playerId"`
	ID        provider.Int  `json:"id"`
	Name      provider.Text `json:"name"`
	Catches   provider.Int  `json:"catches"`
	Stumpings provider.Int  `json:"stumpings"`
	St        provider.Int  `json:"st"`
}

// fieldingList accepts fielding data as a list of entries or an object keyed
// by player id.
type fieldingList []rawFielder

// UnmarshalJSON implements json.Unmarshaler.
func (l *fieldingList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		var list provider.List[rawFielder]
		_ = list.UnmarshalJSON(b)
		*l = fieldingList(list)
	case '{':
		var keyed provider.Dict[rawFielder]
		_ = keyed.UnmarshalJSON(b)
		for _, k := range orderedKeys(keyed) {
			f := keyed[k]
			if !positive(provider.FirstInt(f.PlayerID, f.ID)).Valid {
				f.PlayerID = provider.ParseInt(k)
			}
			*l = append(*l, f)
		}
	}
	return nil
}

type batTeamDetails struct {
	TeamID       provider.Int             `json:"teamId"`
	BatTeamID    provider.Int             `json:"batTeamId"`
	BatTeamName  provider.Text            `json:"batTeamName"`
	BatsmenData  provider.Dict[rawBatter] `json:"batsmenData"`
	Partnerships partnershipList          `json:"partnerships"`
}

type bowlTeamDetails struct {
	TeamID       provider.Int             `json:"teamId"`
	BowlTeamID   provider.Int             `json:"bowlTeamId"`
	BowlTeamName provider.Text            `json:"bowlTeamName"`
	BowlersData  provider.Dict[rawBowler] `json:"bowlersData"`
}

// rawCard is one innings. The flat layout lists batsman/bowler/fielder
// arrays; the detailed layout nests keyed maps under team blocks. A card may
// carry pieces of both.
type rawCard struct {
	Batsman       provider.List[rawBatter]  `json:"batsman"`
	Bowler        provider.List[rawBowler]  `json:"bowler"`
	Fielder       provider.List[rawFielder] `json:"fielder"`
	BatTeamIDFlat provider.Int              `json:"batteamid"`
	BatTeamName   provider.Text             `json:"batteamname"`
	BowlTeamID    provider.Int              `json:"bowlteamid"`
	BowlTeamName  provider.Text             `json:"bowlteamname"`

	BatTeamDetails   provider.Object[batTeamDetails]  `json:"batTeamDetails"`
	BowlTeamDetails  provider.Object[bowlTeamDetails] `json:"bowlTeamDetails"`
	Partnerships     partnershipList                  `json:"partnerships"`
	Partnership      partnershipList                  `json:"partnership"`
	PartnershipsData partnershipList                  `json:"partnershipsData"`
	FieldingData     fieldingList                     `json:"fieldingData"`
}

type scorecardPayload struct {
	ScoreCard provider.List[rawCard] `json:"scoreCard"`
	Scorecard provider.List[rawCard] `json:"scorecard"`
}

// --------------------------------------------------------------------------
// Parser
// --------------------------------------------------------------------------

// ParseScorecard extracts batting, bowling, partnership, and fielding rows
// from a scorecard payload. Innings are numbered by card position starting
// at 1. Fielding is summed per player across the whole match.
func ParseScorecard(body []byte, matchID int64) (provider.Scorecard, error) {
	var p scorecardPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return provider.Scorecard{}, errors.Wrapf(ErrMalformed, "scorecard %d: %v", matchID, err)
	}
	cards := firstShape(p,
		func(p scorecardPayload) []rawCard { return p.ScoreCard },
		func(p scorecardPayload) []rawCard { return p.Scorecard },
	)
	sc := provider.Scorecard{MatchID: matchID, Innings: len(cards)}
	if len(cards) == 0 {
		return sc, errors.Wrapf(ErrNoData, "scorecard %d has no innings", matchID)
	}

	fielding := newFieldingTally()
	for i, card := range cards {
		inn := i + 1
		sc.Batting = append(sc.Batting, card.batting(inn)...)
		sc.Bowling = append(sc.Bowling, card.bowling(inn)...)
		sc.Partnerships = append(sc.Partnerships, card.partnerships(inn)...)
		for _, f := range card.Fielder {
			fielding.add(f)
		}
		for _, f := range card.FieldingData {
			fielding.add(f)
		}
	}
	sc.Fielding = fielding.entries()
	return sc, nil
}

func (c rawCard) batting(inn int) []provider.BattingEntry {
	var out []provider.BattingEntry
	teamID := positive(c.BatTeamIDFlat).V
	for n, b := range c.Batsman {
		if e, ok := b.normalize(inn, teamID, string(c.BatTeamName), n+1); ok {
			out = append(out, e)
		}
	}
	if !c.BatTeamDetails.Valid {
		return out
	}
	d := c.BatTeamDetails.V
	teamID = positive(provider.FirstInt(d.TeamID, d.BatTeamID)).V
	for _, k := range orderedKeys(d.BatsmenData) {
		if e, ok := d.BatsmenData[k].normalize(inn, teamID, string(d.BatTeamName), keyOrder(k)); ok {
			out = append(out, e)
		}
	}
	return out
}

func (c rawCard) bowling(inn int) []provider.BowlingEntry {
	var out []provider.BowlingEntry
	teamID := positive(c.BowlTeamID).V
	for _, b := range c.Bowler {
		if e, ok := b.normalize(inn, teamID, string(c.BowlTeamName)); ok {
			out = append(out, e)
		}
	}
	if !c.BowlTeamDetails.Valid {
		return out
	}
	d := c.BowlTeamDetails.V
	teamID = positive(provider.FirstInt(d.TeamID, d.BowlTeamID)).V
	for _, k := range orderedKeys(d.BowlersData) {
		if e, ok := d.BowlersData[k].normalize(inn, teamID, string(d.BowlTeamName)); ok {
			out = append(out, e)
		}
	}
	return out
}

// partnerships returns the card's explicit partnerships, falling back to
// pairs derived from the flat batting order when none are given.
func (c rawCard) partnerships(inn int) []provider.PartnershipEntry {
	raws := firstShape(c,
		func(c rawCard) []rawPartnership { return c.Partnerships },
		func(c rawCard) []rawPartnership { return c.BatTeamDetails.V.Partnerships },
		func(c rawCard) []rawPartnership { return c.PartnershipsData },
		func(c rawCard) []rawPartnership { return c.Partnership },
	)
	if len(raws) == 0 {
		return derivePartnerships(inn, c.Batsman)
	}
	var out []provider.PartnershipEntry
	for _, r := range raws {
		if e, ok := r.normalize(inn); ok {
			out = append(out, e)
		}
	}
	return out
}

// derivePartnerships pairs consecutive batters in order. Each stand is
// credited with the runs and balls of the batter who joins it (the opening
// stand gets both openers'), and the surviving batter carries into the next
// pair. Derived pairs are adjacent, so PosDiff is 1.
func derivePartnerships(inn int, batters []rawBatter) []provider.PartnershipEntry {
	var out []provider.PartnershipEntry
	var pair []provider.Int
	runs, balls := 0, 0
	for _, b := range batters {
		pair = append(pair, b.id())
		runs += int(b.Runs.V)
		balls += int(provider.FirstInt(b.Balls, b.BallsFaced).V)
		if len(pair) < 2 {
			continue
		}
		if pair[0].Valid && pair[1].Valid {
			diff := 1
			out = append(out, provider.PartnershipEntry{
				Innings:   inn,
				Player1ID: pair[0].V,
				Player2ID: pair[1].V,
				Runs:      runs,
				Balls:     balls,
				PosDiff:   &diff,
			})
		}
		pair = pair[1:]
		runs, balls = 0, 0
	}
	return out
}

// fieldingTally sums catches and stumpings per player, keeping first-seen
// order.
type fieldingTally struct {
	order []int64
	byID  map[int64]*provider.FieldingEntry
}

func newFieldingTally() *fieldingTally {
	return &fieldingTally{byID: map[int64]*provider.FieldingEntry{}}
}

func (t *fieldingTally) add(f rawFielder) {
	id := positive(provider.FirstInt(f.PlayerID, f.ID))
	if !id.Valid {
		return
	}
	e, ok := t.byID[id.V]
	if !ok {
		e = &provider.FieldingEntry{PlayerID: id.V}
		t.byID[id.V] = e
		t.order = append(t.order, id.V)
	}
	if e.PlayerName == "" {
		e.PlayerName = string(f.Name)
	}
	e.Catches += int(f.Catches.V)
	e.Stumpings += int(provider.FirstInt(f.Stumpings, f.St).V)
}

func (t *fieldingTally) entries() []provider.FieldingEntry {
	out := make([]provider.FieldingEntry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// keyOrder reads N from keys like "bat_3"; 0 when there is none.
func keyOrder(k string) int {
	i := strings.LastIndexByte(k, '_')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(k[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// orderedKeys sorts "bat_2" before "bat_10", falling back to string order.
func orderedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keyOrder(keys[i]), keyOrder(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// --------------------------------------------------------------------------
// Endpoint
// --------------------------------------------------------------------------

// Scorecard fetches and parses a match scorecard.
func (c *Client) Scorecard(ctx context.Context, matchID int64) (provider.Scorecard, error) {
	body, err := c.get(ctx, "scorecard", fmt.Sprintf("/mcenter/v1/%d/scard", matchID), nil)
	if err != nil {
		return provider.Scorecard{}, err
	}
	return ParseScorecard(body, matchID)
}
