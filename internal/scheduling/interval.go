package scheduling

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End). Back-to-back
// intervals sharing an endpoint do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// Valid reports whether the interval is well-formed.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Clip bounds iv to [start, end), returning the zero Interval when
// nothing remains.
func (iv Interval) Clip(start, end time.Time) Interval {
	s, e := iv.Start, iv.End
	if s.Before(start) {
		s = start
	}
	if e.After(end) {
		e = end
	}
	if !s.Before(e) {
		return Interval{}
	}
	return Interval{Start: s, End: e}
}

// MergeIntervals sorts intervals by start and coalesces overlapping or
// touching neighbours into a minimal disjoint ordered set.
func MergeIntervals(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		out = append(out, cur)
		cur = iv
	}
	return append(out, cur)
}

// SubtractBusy removes busy ranges from free ranges. Both inputs may be
// unsorted and internally overlapping; the result is disjoint and
// ordered by start time.
func SubtractBusy(free, busy []Interval) []Interval {
	freeMerged := MergeIntervals(free)
	busyMerged := MergeIntervals(busy)

	out := make([]Interval, 0, len(freeMerged))
	bi := 0
	for _, f := range freeMerged {
		cursor := f.Start
		for bi < len(busyMerged) && busyMerged[bi].End.Before(cursor) {
			bi++
		}
		for j := bi; j < len(busyMerged); j++ {
			b := busyMerged[j]
			if !b.Start.Before(f.End) {
				break
			}
			if b.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(f.End) {
			out = append(out, Interval{Start: cursor, End: f.End})
		}
	}
	return out
}
