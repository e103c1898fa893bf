package reflection

import "time"

// Budget is a wall-clock ceiling measured from a fixed start
type Budget struct {
	start time.Time
	total time.Duration
	now   func() time.Time
}

// NewBudget starts a budget of total at now()
func NewBudget(total time.Duration, now func() time.Time) Budget {
	if now == nil {
		now = time.Now
	}
	return Budget{start: now(), total: total, now: now}
}

// Elapsed is the time spent since the budget started
func (b Budget) Elapsed() time.Duration { return b.now().Sub(b.start) }

// Remaining is never negative
func (b Budget) Remaining() time.Duration {
	if r := b.total - b.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether nothing remains
func (b Budget) Expired() bool { return b.Remaining() <= 0 }

// Bound caps a per-call limit by what remains
func (b Budget) Bound(limit time.Duration) time.Duration {
	if r := b.Remaining(); r < limit {
		return r
	}
	return limit
}
