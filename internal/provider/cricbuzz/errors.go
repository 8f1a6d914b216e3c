package cricbuzz

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Fatal errors abort the whole run.
var (
	ErrMissingCredentials = errors.New("cricbuzz: RAPIDAPI_KEY is not set")
	ErrBudgetExhausted    = errors.New("cricbuzz: API call budget exhausted")
)

// Soft outcomes: the caller skips the entity (or, for ErrRateLimited, the
// rest of the batch) and carries on.
var (
	ErrRateLimited = errors.New("cricbuzz: rate limited")
	ErrNoData      = errors.New("cricbuzz: no data")
	ErrMalformed   = errors.New("cricbuzz: malformed response")
)

// Kind tags a fetch outcome.
type Kind string

const (
	KindOK          Kind = "ok"
	KindRateLimited Kind = "rate_limited"
	KindNoData      Kind = "no_data"
	KindMalformed   Kind = "malformed"
	KindFatal       Kind = "fatal"
	KindCanceled    Kind = "canceled"
)

// KindOf classifies err. Unknown errors are treated as no data.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrBudgetExhausted):
		return KindFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindNoData
	}
}

// IsFatal reports whether err must abort the run rather than skip an entity.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindFatal || k == KindCanceled
}

// Hint returns the operator-facing hints attached to err, if any.
func Hint(err error) string {
	return errors.FlattenHints(err)
}
