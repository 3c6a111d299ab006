package engine

// Clock is the logical clock of a run: every applied request is stamped with
// the next value, starting at 1. Replay depends on seq alone, so wall-clock
// time never enters a change record.
//
// A clock belongs to one run and is not safe for concurrent use.
type Clock struct {
	seq int64
}

func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock that continues after start, for resuming a
// recorded run at its last seq.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last value handed out, 0 if none.
func (c *Clock) Current() int64 {
	return c.seq
}
