package clock

import "time"

// Clock produces the two time representations the switch records: a
// monotonic nanosecond counter used for entry stamps, transfer deadlines and
// processing-time measurement, and the wall clock used for trace events.
//
// The monotonic counter is anchored at clock creation, so values are only
// comparable within one broker run. time.Now carries a monotonic reading on
// every supported platform; arithmetic through time.Since uses it and falls
// back to the wall clock only if the reading is stripped.
type Clock struct {
	base time.Time
}

// New returns a clock anchored at the current instant.
func New() *Clock {
	return &Clock{base: time.Now()}
}

// Ns returns nanoseconds elapsed since the clock was created.
func (c *Clock) Ns() int64 {
	return int64(time.Since(c.base))
}

// Wall returns the current wall-clock time.
func (c *Clock) Wall() time.Time {
	return time.Now()
}

// WallSeconds returns the wall clock as fractional seconds since the Unix
// epoch, the representation trace events carry.
func (c *Clock) WallSeconds() float64 {
	now := time.Now()
	return float64(now.UnixNano()) / float64(time.Second)
}
