package model

import "fmt"

// Interval is a half-open integer range [Start, Stop). It is used both for
// resource-block ranges in the frequency domain and OFDM-symbol ranges in the
// time domain.
type Interval struct {
	Start int
	Stop  int
}

// NewInterval builds an interval, swapping the bounds if given in reverse.
func NewInterval(start, stop int) Interval {
	if stop < start {
		start, stop = stop, start
	}
	return Interval{Start: start, Stop: stop}
}

// Len returns the number of units covered by the interval.
func (i Interval) Len() int {
	if i.Stop <= i.Start {
		return 0
	}
	return i.Stop - i.Start
}

// Empty reports whether the interval covers nothing.
func (i Interval) Empty() bool { return i.Len() == 0 }

// Contains reports whether pos falls inside the interval.
func (i Interval) Contains(pos int) bool { return pos >= i.Start && pos < i.Stop }

// Overlaps reports whether two intervals share at least one unit.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.Stop && other.Start < i.Stop
}

// Intersect returns the common sub-range of two intervals, which may be empty.
func (i Interval) Intersect(other Interval) Interval {
	out := Interval{Start: max(i.Start, other.Start), Stop: min(i.Stop, other.Stop)}
	if out.Stop < out.Start {
		out.Stop = out.Start
	}
	return out
}

// Resize clips the interval to at most n units, keeping its start position.
func (i Interval) Resize(n int) Interval {
	if n < 0 {
		n = 0
	}
	if i.Len() > n {
		return Interval{Start: i.Start, Stop: i.Start + n}
	}
	return i
}

func (i Interval) String() string { return fmt.Sprintf("[%d..%d)", i.Start, i.Stop) }
