// Package seed orchestrates the Cricbuzz ETL: it drives the provider
// client, upserts normalized records into Postgres, and accounts for every
// skip and failure in a SeedResult.
package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/cricket-livestats/internal/provider"
)

// Skip records one entity that was left out of a run and why.
type Skip struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// SeedResult tracks counts, skips, and errors from one ETL routine.
type SeedResult struct {
	RunID      uuid.UUID `json:"run_id"`
	Routine    string    `json:"routine"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TeamsUpserted        int `json:"teams_upserted"`
	PlayersUpserted      int `json:"players_upserted"`
	SeriesUpserted       int `json:"series_upserted"`
	MatchesUpserted      int `json:"matches_upserted"`
	BattingUpserted      int `json:"batting_upserted"`
	BowlingUpserted      int `json:"bowling_upserted"`
	PartnershipsUpserted int `json:"partnerships_upserted"`
	FieldingUpserted     int `json:"fielding_upserted"`

	APICalls int      `json:"api_calls"`
	Skips    []Skip   `json:"skips,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	// Aborted holds the cause when the run stopped early; Hint carries the
	// operator-facing advice attached to it.
	Aborted string `json:"aborted,omitempty"`
	Hint    string `json:"hint,omitempty"`

	abortErr error
	venues   map[int64]provider.Venue
}

// NewResult starts a result for the named routine with a fresh run id.
func NewResult(routine string) SeedResult {
	return SeedResult{RunID: uuid.New(), Routine: routine, StartedAt: time.Now().UTC()}
}

// Add merges another SeedResult's counts, skips, and errors into this one.
func (r *SeedResult) Add(other SeedResult) {
	r.TeamsUpserted += other.TeamsUpserted
	r.PlayersUpserted += other.PlayersUpserted
	r.SeriesUpserted += other.SeriesUpserted
	r.MatchesUpserted += other.MatchesUpserted
	r.BattingUpserted += other.BattingUpserted
	r.BowlingUpserted += other.BowlingUpserted
	r.PartnershipsUpserted += other.PartnershipsUpserted
	r.FieldingUpserted += other.FieldingUpserted
	r.APICalls += other.APICalls
	r.Skips = append(r.Skips, other.Skips...)
	r.Errors = append(r.Errors, other.Errors...)
}

// AddSkip records an entity left out of the run.
func (r *SeedResult) AddSkip(entity string, key any, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.Skips = append(r.Skips, Skip{Entity: entity, Key: fmt.Sprint(key), Reason: reason})
}

// AddError records an error message.
func (r *SeedResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddErrorf records a formatted error message.
func (r *SeedResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Err returns the error that aborted the run, or nil.
func (r *SeedResult) Err() error {
	return r.abortErr
}

// Status is "ok", "partial" (skips or errors), or "aborted".
func (r *SeedResult) Status() string {
	switch {
	case r.Aborted != "":
		return "aborted"
	case len(r.Skips) > 0 || len(r.Errors) > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Summary returns a human-readable summary of the run.
func (r *SeedResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"teams=%d players=%d series=%d matches=%d batting=%d bowling=%d partnerships=%d fielding=%d api_calls=%d skips=%d errors=%d",
		r.TeamsUpserted, r.PlayersUpserted, r.SeriesUpserted, r.MatchesUpserted,
		r.BattingUpserted, r.BowlingUpserted, r.PartnershipsUpserted, r.FieldingUpserted,
		r.APICalls, len(r.Skips), len(r.Errors),
	)
	if r.Aborted != "" {
		fmt.Fprintf(&b, " aborted=%q", r.Aborted)
	}
	return b.String()
}

func (r *SeedResult) abort(err error, hint string) {
	r.abortErr = err
	r.Aborted = err.Error()
	r.Hint = hint
}
