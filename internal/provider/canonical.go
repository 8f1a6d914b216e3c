// Package provider defines canonical data types that the Cricbuzz normalizers
// produce. These structs are the contract between the provider layer and the
// seed runner: providers output these, seeders write them to Postgres.
//
// Optional numeric fields are pointers so "absent" stays distinguishable from
// zero all the way down to SQL NULL.
package provider

// Team is the canonical team shape written to the teams table.
type Team struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Player is the canonical player shape written to the players table.
type Player struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	BattingStyle string `json:"batting_style,omitempty"`
	BowlingStyle string `json:"bowling_style,omitempty"`
	Country      string `json:"country,omitempty"`
	TeamID       *int64 `json:"team_id,omitempty"`
}

// NeedsProfile reports whether the inline roster data is thin enough that a
// profile fetch is worth a call.
func (p Player) NeedsProfile() bool {
	return p.Role == "" || p.BattingStyle == "" || p.BowlingStyle == "" || p.Country == ""
}

// Merge fills empty fields of p from other.
func (p *Player) Merge(other Player) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Role == "" {
		p.Role = other.Role
	}
	if p.BattingStyle == "" {
		p.BattingStyle = other.BattingStyle
	}
	if p.BowlingStyle == "" {
		p.BowlingStyle = other.BowlingStyle
	}
	if p.Country == "" {
		p.Country = other.Country
	}
}

// Venue is the canonical venue shape. City and Country are empty when
// unknown, never NULL, so the (name, city, country) key stays usable.
type Venue struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
	Capacity *int   `json:"capacity,omitempty"`
}

// NeedsDetail reports whether the provider knows the venue and the listing
// left out its capacity or country.
func (v Venue) NeedsDetail() bool {
	return v.ID > 0 && (v.Capacity == nil || v.Country == "")
}

// Merge fills the location and capacity fields v is missing from d. Name is
// never replaced.
func (v *Venue) Merge(d Venue) {
	if v.City == "" {
		v.City = d.City
	}
	if v.Country == "" {
		v.Country = d.Country
	}
	if v.Capacity == nil && d.Capacity != nil {
		c := *d.Capacity
		v.Capacity = &c
	}
}

// Series is the canonical series shape.
type Series struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	HostCountry  string `json:"host_country,omitempty"`
	MatchType    string `json:"match_type,omitempty"`
	StartDate    string `json:"start_date,omitempty"` // "YYYY-MM-DD"
	EndDate      string `json:"end_date,omitempty"`
	TotalMatches *int   `json:"total_matches,omitempty"`
}

// StartYear returns the year of StartDate, or 0 when unknown.
func (s Series) StartYear() int {
	if len(s.StartDate) < 4 {
		return 0
	}
	y := 0
	for _, c := range s.StartDate[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		y = y*10 + int(c-'0')
	}
	return y
}

// Match is the canonical match shape. Result fields are empty/nil until the
// match is complete or backfilled from the match center.
type Match struct {
	ID           int64  `json:"id"`
	SeriesID     *int64 `json:"series_id,omitempty"`
	SeriesName   string `json:"series_name,omitempty"`
	Team1        *Team  `json:"team1,omitempty"`
	Team2        *Team  `json:"team2,omitempty"`
	Date         string `json:"date,omitempty"`
	Venue        *Venue `json:"venue,omitempty"`
	WinnerID     *int64 `json:"winner_id,omitempty"`
	WinMargin    string `json:"win_margin,omitempty"`
	VictoryType  string `json:"victory_type,omitempty"`
	TossWinnerID *int64 `json:"toss_winner_id,omitempty"`
	TossDecision string `json:"toss_decision,omitempty"`
	Format       string `json:"format,omitempty"`
	Description  string `json:"description,omitempty"`
	State        string `json:"state,omitempty"`
	Status       string `json:"status,omitempty"`
}

// NeedsResult reports whether any result field is missing, which is what
// triggers a match-center backfill.
func (m Match) NeedsResult() bool {
	return m.WinnerID == nil || m.TossWinnerID == nil || m.TossDecision == "" ||
		m.WinMargin == "" || m.VictoryType == ""
}

// MatchResult holds the result fields a match-center payload can supply.
type MatchResult struct {
	WinnerID     *int64
	WinMargin    string
	VictoryType  string
	TossWinnerID *int64
	TossDecision string
}

// Apply fills result fields of m that are still missing.
func (m *Match) Apply(r MatchResult) {
	if m.WinnerID == nil {
		m.WinnerID = r.WinnerID
	}
	if m.WinMargin == "" {
		m.WinMargin = r.WinMargin
	}
	if m.VictoryType == "" {
		m.VictoryType = r.VictoryType
	}
	if m.TossWinnerID == nil {
		m.TossWinnerID = r.TossWinnerID
	}
	if m.TossDecision == "" {
		m.TossDecision = r.TossDecision
	}
}

// BattingEntry is one batter's innings.
type BattingEntry struct {
	PlayerID   int64    `json:"player_id"`
	PlayerName string   `json:"player_name,omitempty"`
	TeamID     *int64   `json:"team_id,omitempty"`
	TeamName   string   `json:"team_name,omitempty"`
	Innings    int      `json:"innings"`
	Runs       int      `json:"runs"`
	Balls      int      `json:"balls"`
	Fours      int      `json:"fours"`
	Sixes      int      `json:"sixes"`
	StrikeRate *float64 `json:"strike_rate,omitempty"`
	Position   *int     `json:"position,omitempty"`
	IsOut      *bool    `json:"is_out,omitempty"` // nil = unknown
}

// BowlingEntry is one bowler's spell in an innings.
type BowlingEntry struct {
	PlayerID   int64    `json:"player_id"`
	PlayerName string   `json:"player_name,omitempty"`
	TeamID     *int64   `json:"team_id,omitempty"`
	TeamName   string   `json:"team_name,omitempty"`
	Innings    int      `json:"innings"`
	Overs      float64  `json:"overs"`
	Maidens    int      `json:"maidens"`
	Runs       int      `json:"runs"`
	Wickets    int      `json:"wickets"`
	Economy    *float64 `json:"economy,omitempty"`
}

// PartnershipEntry is one batting pair's stand in an innings. PosDiff is 1
// when the pair batted in consecutive positions, nil when unknown.
type PartnershipEntry struct {
	Innings   int   `json:"innings"`
	Player1ID int64 `json:"player1_id"`
	Player2ID int64 `json:"player2_id"`
	Runs      int   `json:"runs"`
	Balls     int   `json:"balls"`
	PosDiff   *int  `json:"pos_diff,omitempty"`
}

// FieldingEntry is a player's fielding contribution across a whole match.
type FieldingEntry struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	Catches    int    `json:"catches"`
	Stumpings  int    `json:"stumpings"`
}

// Scorecard is everything extracted from one match's scorecard payload.
type Scorecard struct {
	MatchID      int64              `json:"match_id"`
	Innings      int                `json:"innings"`
	Batting      []BattingEntry     `json:"batting"`
	Bowling      []BowlingEntry     `json:"bowling"`
	Partnerships []PartnershipEntry `json:"partnerships"`
	Fielding     []FieldingEntry    `json:"fielding"`
}

// PlayerStats is a player's career stat table for one kind ("batting",
// "bowling" or "career"): stat name -> format -> value. Cells that are text
// rather than numbers, such as debut and last-played dates, go to Notes.
type PlayerStats struct {
	PlayerID int64                         `json:"player_id"`
	Kind     string                        `json:"kind"`
	Formats  []string                      `json:"formats"`
	Stats    []string                      `json:"stats"`
	Values   map[string]map[string]float64 `json:"values"`
	Notes    map[string]map[string]string  `json:"notes,omitempty"`
}

// LiveMatch is a match summary from the live/recent/upcoming listings.
type LiveMatch struct {
	Match
	Scores []InningsScore `json:"scores,omitempty"`
}

// InningsScore is a team's running score in a listing payload.
type InningsScore struct {
	TeamID  int64    `json:"team_id"`
	Innings int      `json:"innings"`
	Runs    *int     `json:"runs,omitempty"`
	Wickets *int     `json:"wickets,omitempty"`
	Overs   *float64 `json:"overs,omitempty"`
}
