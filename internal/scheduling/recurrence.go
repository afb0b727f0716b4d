package scheduling

import "time"

// ExpandWindow projects an availability window onto concrete intervals
// inside the half-open query range [from, to), clipped to that range.
// Weekly windows repeat their span every 7 days starting at StartTime;
// ValidFrom and ValidUntil, when set, further bound the occurrences.
// The result is ordered by start time.
func ExpandWindow(w AvailabilityWindow, from, to time.Time) []Interval {
	base := Interval{Start: w.StartTime, End: w.EndTime}
	if !base.Valid() || !from.Before(to) {
		return nil
	}

	lo, hi := from, to
	if w.ValidFrom != nil && w.ValidFrom.After(lo) {
		lo = *w.ValidFrom
	}
	if w.ValidUntil != nil && w.ValidUntil.Before(hi) {
		hi = *w.ValidUntil
	}
	if !lo.Before(hi) {
		return nil
	}

	if !w.Weekly {
		iv := base.Clip(lo, hi)
		if iv.IsZero() {
			return nil
		}
		return []Interval{iv}
	}

	const week = 7 * 24 * time.Hour
	span := base.Duration()
	if span <= 0 || span >= week {
		return nil
	}

	// Jump to the first repetition whose end can reach lo.
	offset := 0
	if lo.After(base.End) {
		offset = int(lo.Sub(base.End)/week) + 1
	}

	var out []Interval
	for i := offset; ; i++ {
		occ := Interval{
			Start: base.Start.Add(time.Duration(i) * week),
			End:   base.End.Add(time.Duration(i) * week),
		}
		if !occ.Start.Before(hi) {
			break
		}
		if clipped := occ.Clip(lo, hi); !clipped.IsZero() {
			out = append(out, clipped)
		}
	}
	return out
}
