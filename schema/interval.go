package schema

import "time"

// IntervalLength is the accounting quantum. Timestamps are normalized to the
// start of the enclosing quarter hour before they appear in any key.
const IntervalLength = 15 * time.Minute

// IntervalStart returns the epoch-millisecond start of the interval
// containing t: minutes floored to a multiple of 15, seconds and subseconds
// zeroed, evaluated on the UTC clock.
func IntervalStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%15, 0, 0, time.UTC).UnixMilli()
}

// Boundaries enumerates the sample points a query over [start, end] reads:
// every interval start from start stepped by quarter hour while strictly
// before end, with end itself appended as the final point. start is expected
// to be interval-normalized; end may fall anywhere. start == end yields the
// single point end.
func Boundaries(start, end int64) []int64 {
	n := (end - start) / IntervalLength.Milliseconds()
	if n < 0 {
		n = 0
	}
	out := make([]int64, 0, n+2)
	for t := start; t < end; {
		out = append(out, t)
		t = time.UnixMilli(t).UTC().Add(IntervalLength).UnixMilli()
	}
	return append(out, end)
}
