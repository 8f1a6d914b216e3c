package cricbuzz

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/provider"
)

type rawSeries struct {
	SeriesID      provider.Int  `json:"seriesId"`
	ID            provider.Int  `json:"id"`
	SeriesName    provider.Text `json:"seriesName"`
	Name          provider.Text `json:"name"`
	HostCountry   provider.Text `json:"hostCountry"`
	MatchType     provider.Text `json:"matchType"`
	TotalMatches  provider.Int  `json:"totalMatches"`
	SeriesStartDt provider.Date `json:"seriesStartDt"`
	StartDt       provider.Date `json:"startDt"`
	StartDate     provider.Date `json:"startDate"`
	SeriesEndDt   provider.Date `json:"seriesEndDt"`
	EndDt         provider.Date `json:"endDt"`
	EndDate       provider.Date `json:"endDate"`
}

func (r rawSeries) normalize() (provider.Series, bool) {
	id := positive(provider.FirstInt(r.SeriesID, r.ID))
	if !id.Valid {
		return provider.Series{}, false
	}
	s := provider.Series{
		ID:          id.V,
		Name:        provider.FirstText(r.SeriesName, r.Name),
		HostCountry: string(r.HostCountry),
		MatchType:   string(r.MatchType),
		StartDate:   provider.FirstDate(r.SeriesStartDt, r.StartDt, r.StartDate),
		EndDate:     provider.FirstDate(r.SeriesEndDt, r.EndDt, r.EndDate),
	}
	if r.TotalMatches.Valid && r.TotalMatches.V >= 0 {
		s.TotalMatches = r.TotalMatches.IntPtr()
	}
	return s, true
}

// seriesMonth is one "seriesMapProto" bucket of a listing page.
type seriesMonth struct {
	Date   provider.Text            `json:"date"`
	Series provider.List[rawSeries] `json:"series"`
}

type seriesListPayload struct {
	SeriesMapProto provider.List[seriesMonth] `json:"seriesMapProto"`
	Series         provider.List[rawSeries]   `json:"series"`
	Next           provider.Text              `json:"next"`
	Cursor         provider.Text              `json:"cursor"`
}

// matchGroup is one {"match": [...]} block of a matchDetailsMap.
type matchGroup struct {
	Match provider.List[matchWrapper] `json:"match"`
}

// detailsMap accepts matchDetailsMap as either a single group or a list of
// groups.
type detailsMap []matchGroup

// UnmarshalJSON implements json.Unmarshaler.
func (d *detailsMap) UnmarshalJSON(b []byte) error {
	*d = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '{':
		var g provider.Object[matchGroup]
		_ = g.UnmarshalJSON(b)
		if g.Valid {
			*d = detailsMap{g.V}
		}
	case '[':
		var gs provider.List[matchGroup]
		_ = gs.UnmarshalJSON(b)
		*d = detailsMap(gs)
	}
	return nil
}

type matchBucket struct {
	SeriesMatches   provider.List[seriesMatches] `json:"seriesMatches"`
	MatchDetailsMap detailsMap                   `json:"matchDetailsMap"`
}

type seriesDetailPayload struct {
	rawSeries
	Matches      provider.List[matchWrapper] `json:"matches"`
	MatchDetails provider.List[matchBucket]  `json:"matchDetails"`
	TypeMatches  provider.List[matchBucket]  `json:"typeMatches"`
}

// wrappers returns the series' match objects in payload order: a flat
// "matches" list when present, otherwise everything inside the buckets.
func (p seriesDetailPayload) wrappers() []matchWrapper {
	if len(p.Matches) > 0 {
		return p.Matches
	}
	var out []matchWrapper
	for _, buckets := range [][]matchBucket{p.MatchDetails, p.TypeMatches} {
		for _, b := range buckets {
			for _, sm := range b.SeriesMatches {
				out = append(out, sm.group().Matches...)
			}
			for _, g := range b.MatchDetailsMap {
				out = append(out, g.Match...)
			}
		}
	}
	return out
}

// SeriesPage is one page of the series listing.
type SeriesPage struct {
	Series []provider.Series
	Cursor string
}

// ParseSeriesPage extracts series from a listing page. Month buckets and a
// flat list are both accepted.
func ParseSeriesPage(body []byte) (SeriesPage, error) {
	var p seriesListPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return SeriesPage{}, errors.Wrapf(ErrMalformed, "series listing: %v", err)
	}
	raws := []rawSeries(p.Series)
	for _, month := range p.SeriesMapProto {
		raws = append(raws, month.Series...)
	}
	out := SeriesPage{Cursor: provider.FirstText(p.Next, p.Cursor)}
	for _, r := range raws {
		if s, ok := r.normalize(); ok {
			out.Series = append(out.Series, s)
		}
	}
	return out, nil
}

// SeriesDetail is a series together with the matches it lists.
type SeriesDetail struct {
	Series  provider.Series
	Matches []provider.Match
}

// ParseSeriesDetail extracts a series and its matches. Every match is
// attributed to seriesID. Series fields the payload leaves out are derived
// from the matches (see DeriveSeries).
func ParseSeriesDetail(body []byte, seriesID int64) (SeriesDetail, error) {
	var p seriesDetailPayload
	if err := sonic.Unmarshal(body, &p); err != nil {
		return SeriesDetail{}, errors.Wrapf(ErrMalformed, "series %d: %v", seriesID, err)
	}
	s, ok := p.rawSeries.normalize()
	if !ok {
		s = provider.Series{}
	}
	if seriesID > 0 {
		s.ID = seriesID
	}
	if s.ID <= 0 {
		return SeriesDetail{}, errors.Wrap(ErrNoData, "series detail without id")
	}

	var matches []provider.Match
	seen := map[int64]bool{}
	for _, w := range p.wrappers() {
		m, ok := w.info().normalize(s.ID)
		if !ok || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		matches = append(matches, m)
	}
	return SeriesDetail{Series: DeriveSeries(s, matches), Matches: matches}, nil
}

// DeriveSeries fills series fields the provider left out using the series'
// matches: host country from the first match's venue, match type from its
// format, the date range from the earliest and latest match, and the total
// from the match count.
func DeriveSeries(s provider.Series, matches []provider.Match) provider.Series {
	if len(matches) == 0 {
		return s
	}
	first := matches[0]
	if s.HostCountry == "" && first.Venue != nil {
		s.HostCountry = firstNonEmpty(first.Venue.Country, first.Venue.City)
	}
	if s.MatchType == "" {
		s.MatchType = first.Format
	}
	if s.Name == "" {
		s.Name = first.SeriesName
	}
	if s.StartDate == "" || s.EndDate == "" {
		lo, hi := "", ""
		for _, m := range matches {
			if m.Date == "" {
				continue
			}
			if lo == "" || m.Date < lo {
				lo = m.Date
			}
			if m.Date > hi {
				hi = m.Date
			}
		}
		if s.StartDate == "" {
			s.StartDate = lo
		}
		if s.EndDate == "" {
			s.EndDate = hi
		}
	}
	if s.TotalMatches == nil {
		n := len(matches)
		s.TotalMatches = &n
	}
	return s
}

// SeriesListPage fetches one page of the current or archived international
// series listing.
func (c *Client) SeriesListPage(ctx context.Context, archived bool, cursor string) (SeriesPage, error) {
	path, endpoint := "/series/v1/international", "series_list"
	if archived {
		path, endpoint = "/series/v1/archives/international", "series_archive"
	}
	var params url.Values
	if cursor != "" {
		params = url.Values{"cursor": {cursor}}
	}
	body, err := c.get(ctx, endpoint, path, params)
	if err != nil {
		return SeriesPage{}, err
	}
	return ParseSeriesPage(body)
}

// SeriesDetail fetches a series and its match list.
func (c *Client) SeriesDetail(ctx context.Context, seriesID int64) (SeriesDetail, error) {
	body, err := c.get(ctx, "series_detail", fmt.Sprintf("/series/v1/%d", seriesID), nil)
	if err != nil {
		return SeriesDetail{}, err
	}
	return ParseSeriesDetail(body, seriesID)
}
