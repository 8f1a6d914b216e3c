package cricbuzz

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// Clock is the time source the limiter and retry loop use. Tests inject a
// fake so pacing and backoff never actually sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LimiterConfig sizes a Limiter.
type LimiterConfig struct {
	Budget            int // total calls allowed for the limiter's lifetime
	MaxPerRun         int // calls allowed per ETL run; 0 = Budget
	RequestsPerMinute int
}

// Usage is a snapshot of call accounting.
type Usage struct {
	Used      int `json:"used"`
	RunUsed   int `json:"run_used"`
	Budget    int `json:"budget"`
	MaxPerRun int `json:"max_per_run"`
}

// Limiter paces outbound calls with a token bucket and enforces the call
// budget. Every HTTP attempt, retries included, is charged to the overall
// budget. Only calls made under a context returned by StartRun are charged
// to the per-run cap, so interactive lookups are never blocked by it.
type Limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	clock   Clock
	budget  int
	maxRun  int
	used    int
	runUsed int
}

// NewLimiter creates a limiter. A nil clock uses the wall clock.
func NewLimiter(cfg LimiterConfig, clock Clock) *Limiter {
	if clock == nil {
		clock = realClock{}
	}
	maxRun := cfg.MaxPerRun
	if maxRun <= 0 {
		maxRun = cfg.Budget
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		clock:  clock,
		budget: cfg.Budget,
		maxRun: maxRun,
	}
}

type runKey struct{}

// Acquire charges one call against the budget and blocks until the token
// bucket allows it.
func (l *Limiter) Acquire(ctx context.Context) error {
	inRun := ctx.Value(runKey{}) == l
	l.mu.Lock()
	if l.used >= l.budget || (inRun && l.runUsed >= l.maxRun) {
		u := l.usageLocked()
		l.mu.Unlock()
		return errors.WithHintf(ErrBudgetExhausted,
			"used %d of %d total calls (%d of %d this run); raise API_BUDGET/MAX_API_CALLS or wait for the quota to reset",
			u.Used, u.Budget, u.RunUsed, u.MaxPerRun)
	}
	now := l.clock.Now()
	delay := l.bucket.ReserveN(now, 1).DelayFrom(now)
	l.used++
	if inRun {
		l.runUsed++
	}
	l.mu.Unlock()

	return l.clock.Sleep(ctx, delay)
}

// StartRun opens a new per-run window and returns a context whose calls
// count against it. The overall budget is not reset.
func (l *Limiter) StartRun(ctx context.Context) context.Context {
	l.mu.Lock()
	l.runUsed = 0
	l.mu.Unlock()
	return context.WithValue(ctx, runKey{}, l)
}

// Usage returns the current accounting snapshot.
func (l *Limiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usageLocked()
}

func (l *Limiter) usageLocked() Usage {
	return Usage{Used: l.used, RunUsed: l.runUsed, Budget: l.budget, MaxPerRun: l.maxRun}
}
