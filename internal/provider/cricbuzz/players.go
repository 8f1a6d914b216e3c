package cricbuzz

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/provider"
)

// --------------------------------------------------------------------------
// Raw shapes
// --------------------------------------------------------------------------

type rawTeam struct {
	TeamID    provider.Int  `json:"teamId"`
	ID        provider.Int  `json:"id"`
	TeamName  provider.Text `json:"teamName"`
	Name      provider.Text `json:"name"`
	TeamSName provider.Text `json:"teamSName"`
	ShortName provider.Text `json:"shortName"`
	SName     provider.Text `json:"sName"`
	Country   provider.Text `json:"country"`
}

func (r rawTeam) normalize() (provider.Team, bool) {
	id := provider.FirstInt(r.TeamID, r.ID)
	if !id.Valid || id.V <= 0 {
		return provider.Team{}, false
	}
	t := provider.Team{
		ID:        id.V,
		Name:      provider.FirstText(r.TeamName, r.Name),
		ShortName: provider.FirstText(r.TeamSName, r.ShortName, r.SName),
		Country:   string(r.Country),
	}
	// The international listing carries no country; the team name is the
	// closest thing to one.
	if t.Country == "" {
		t.Country = t.Name
	}
	return t, true
}

// teamEntry covers list items that either are a team or wrap one in "team".
type teamEntry struct {
	rawTeam
	Team provider.Object[rawTeam] `json:"team"`
}

func (e teamEntry) team() rawTeam {
	if e.Team.Valid {
		return e.Team.V
	}
	return e.rawTeam
}

type teamsPayload struct {
	List  provider.List[teamEntry] `json:"list"`
	Teams provider.List[teamEntry] `json:"teams"`
}

type rawPlayer struct {
	ID           provider.Int  `json:"id"`
	PlayerID     provider.Int  `json:"playerId"`
	Name         provider.Text `json:"name"`
	FullName     provider.Text `json:"fullName"`
	BatName      provider.Text `json:"batName"`
	Role         provider.Text `json:"role"`
	PlayingRole  provider.Text `json:"playingRole"`
	Bat          provider.Text `json:"bat"`
	BattingStyle provider.Text `json:"battingStyle"`
	Bowl         provider.Text `json:"bowl"`
	BowlingStyle provider.Text `json:"bowlingStyle"`
	IntlTeam     provider.Text `json:"intlTeam"`
	TeamName     provider.Text `json:"teamName"`

	Profile provider.Object[rawProfile] `json:"profile"`
}

// rawProfile is the nested profile block some player payloads carry.
type rawProfile struct {
	Name     provider.Text `json:"name"`
	Role     provider.Text `json:"role"`
	Bat      provider.Text `json:"bat"`
	Bowl     provider.Text `json:"bowl"`
	IntlTeam provider.Text `json:"intlTeam"`
}

func (r rawPlayer) normalize() (provider.Player, bool) {
	id := provider.FirstInt(r.ID, r.PlayerID)
	if !id.Valid || id.V <= 0 {
		return provider.Player{}, false
	}
	prof := r.Profile.V
	p := provider.Player{
		ID:           id.V,
		Name:         provider.FirstText(r.Name, prof.Name, r.FullName, r.BatName),
		Role:         provider.FirstText(r.Role, r.PlayingRole, prof.Role),
		BattingStyle: provider.FirstText(r.Bat, r.BattingStyle, prof.Bat),
		BowlingStyle: provider.FirstText(r.Bowl, r.BowlingStyle, prof.Bowl),
		Country:      provider.FirstText(r.IntlTeam, r.TeamName, prof.IntlTeam),
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Player %d", p.ID)
	}
	return p, true
}

type rosterPayload struct {
	Player  provider.List[rawPlayer] `json:"player"`
	Players provider.List[rawPlayer] `json:"players"`
}

type statRow struct {
	Values provider.List[provider.Text] `json:"values"`
}

type statTablePayload struct {
	Headers provider.List[provider.Text] `json:"headers"`
	Values  provider.List[statRow]       `json:"values"`
}

// careerRow is one format's span in the career payload.
type careerRow struct {
	Name       provider.Text `json:"name"`
	Format     provider.Text `json:"format"`
	Debut      provider.Text `json:"debut"`
	LastPlayed provider.Text `json:"lastPlayed"`
}

type careerPayload struct {
	Values provider.List[careerRow] `json:"values"`
}

// Stat kinds served by PlayerStats.
const (
	StatsBatting = "batting"
	StatsBowling = "bowling"
	StatsCareer  = "career"
)

// --------------------------------------------------------------------------
// Parsers
// --------------------------------------------------------------------------

// ParseTeams extracts teams from a teams listing. Header rows without an id
// are skipped.
func ParseTeams(body []byte) ([]provider.Team, error) {
	var p teamsPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "teams: %v", err)
	}
	entries := firstShape(p,
		func(p teamsPayload) []teamEntry { return p.List },
		func(p teamsPayload) []teamEntry { return p.Teams },
	)
	teams := make([]provider.Team, 0, len(entries))
	for _, e := range entries {
		if t, ok := e.team().normalize(); ok {
			teams = append(teams, t)
		}
	}
	return teams, nil
}

// ParseRoster extracts a team's players. Section header rows ("BATSMEN",
// "BOWLER") carry no id and are skipped.
func ParseRoster(body []byte, teamID int64) ([]provider.Player, error) {
	var p rosterPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "roster: %v", err)
	}
	raws := firstShape(p,
		func(p rosterPayload) []rawPlayer { return p.Player },
		func(p rosterPayload) []rawPlayer { return p.Players },
	)
	players := make([]provider.Player, 0, len(raws))
	for _, r := range raws {
		pl, ok := r.normalize()
		if !ok {
			continue
		}
		if teamID > 0 {
			tid := teamID
			pl.TeamID = &tid
		}
		players = append(players, pl)
	}
	return players, nil
}

// ParsePlayerProfile extracts a player from a profile payload.
func ParsePlayerProfile(body []byte) (provider.Player, error) {
	var r rawPlayer
	if err := sonic.Unmarshal(body, &r); err != nil {
		return provider.Player{}, errors.Wrapf(ErrMalformed, "player profile: %v", err)
	}
	p, ok := r.normalize()
	if !ok {
		return provider.Player{}, errors.Wrap(ErrNoData, "player profile without id")
	}
	return p, nil
}

// ParsePlayerStats turns a headers/values stat table into a per-stat,
// per-format map. The first header labels the row-name column.
func ParsePlayerStats(body []byte, playerID int64, kind string) (provider.PlayerStats, error) {
	var p statTablePayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return provider.PlayerStats{}, errors.Wrapf(ErrMalformed, "%s stats: %v", kind, err)
	}
	out := provider.PlayerStats{
		PlayerID: playerID,
		Kind:     kind,
		Values:   map[string]map[string]float64{},
	}
	if len(p.Headers) < 2 {
		return out, nil
	}
	for _, h := range p.Headers[1:] {
		out.Formats = append(out.Formats, string(h))
	}
	for _, row := range p.Values {
		if len(row.Values) == 0 || row.Values[0] == "" {
			continue
		}
		stat := string(row.Values[0])
		cells := map[string]float64{}
		for j := 1; j < len(row.Values) && j < len(p.Headers); j++ {
			if v, ok := provider.ParseNumber(string(row.Values[j])); ok {
				cells[string(p.Headers[j])] = v
			}
		}
		out.Stats = append(out.Stats, stat)
		out.Values[stat] = cells
	}
	return out, nil
}

// ParseCareer extracts a player's debut and last-played span per format.
// A headers/values table is accepted too and parsed like the batting and
// bowling tables.
func ParseCareer(body []byte, playerID int64) (provider.PlayerStats, error) {
	st, err := ParsePlayerStats(body, playerID, StatsCareer)
	if err != nil || len(st.Formats) > 0 {
		return st, err
	}
	var p careerPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return provider.PlayerStats{}, errors.Wrapf(ErrMalformed, "career stats: %v", err)
	}
	st.Stats = []string{"Debut", "Last Played"}
	st.Notes = map[string]map[string]string{}
	for _, r := range p.Values {
		format := formatLabel(provider.FirstText(r.Name, r.Format))
		if format == "" {
			continue
		}
		st.Formats = append(st.Formats, format)
		for stat, v := range map[string]provider.Text{"Debut": r.Debut, "Last Played": r.LastPlayed} {
			if v == "" || v == "-" {
				continue
			}
			if st.Notes[stat] == nil {
				st.Notes[stat] = map[string]string{}
			}
			st.Notes[stat][format] = string(v)
		}
	}
	return st, nil
}

// formatLabel maps the career payload's lower-case format keys onto the
// labels the stat tables use.
func formatLabel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "test":
		return "Test"
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

// --------------------------------------------------------------------------
// Endpoints
// --------------------------------------------------------------------------

// Teams fetches the international teams listing.
func (c *Client) Teams(ctx context.Context) ([]provider.Team, error) {
	body, err := c.get(ctx, "teams", "/teams/v1/international", nil)
	if err != nil {
		return nil, err
	}
	return ParseTeams(body)
}

// Roster fetches a team's players.
func (c *Client) Roster(ctx context.Context, teamID int64) ([]provider.Player, error) {
	body, err := c.get(ctx, "roster", fmt.Sprintf("/teams/v1/%d/players", teamID), nil)
	if err != nil {
		return nil, err
	}
	return ParseRoster(body, teamID)
}

// PlayerProfile fetches a player's profile.
func (c *Client) PlayerProfile(ctx context.Context, playerID int64) (provider.Player, error) {
	body, err := c.get(ctx, "player_profile", fmt.Sprintf("/stats/v1/player/%d", playerID), nil)
	if err != nil {
		return provider.Player{}, err
	}
	return ParsePlayerProfile(body)
}

// SearchPlayers searches players by name.
func (c *Client) SearchPlayers(ctx context.Context, name string) ([]provider.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	body, err := c.get(ctx, "player_search", "/stats/v1/player/search", url.Values{"plrN": {name}})
	if err != nil {
		return nil, err
	}
	return ParseRoster(body, 0)
}

// PlayerStats fetches one of a player's career tables: batting, bowling,
// or the per-format career span.
func (c *Client) PlayerStats(ctx context.Context, playerID int64, kind string) (provider.PlayerStats, error) {
	switch kind {
	case StatsBatting, StatsBowling, StatsCareer:
	default:
		return provider.PlayerStats{}, fmt.Errorf("unknown stats kind %q", kind)
	}
	body, err := c.get(ctx, "player_"+kind, fmt.Sprintf("/stats/v1/player/%d/%s", playerID, kind), nil)
	if err != nil {
		return provider.PlayerStats{}, err
	}
	if kind == StatsCareer {
		return ParseCareer(body, playerID)
	}
	return ParsePlayerStats(body, playerID, kind)
}

// firstShape returns the first non-empty extraction, in priority order.
func firstShape[P any, T any](p P, shapes ...func(P) []T) []T {
	for _, s := range shapes {
		if v := s(p); len(v) > 0 {
			return v
		}
	}
	return nil
}
