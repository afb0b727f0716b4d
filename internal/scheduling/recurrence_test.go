package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday 2026-03-10 09:00-17:00 UTC, repeating weekly.
func weeklyTuesdayWindow() AvailabilityWindow {
	return AvailabilityWindow{
		CareProviderID: testProviderID,
		StartTime:      at(9, 0),
		EndTime:        at(17, 0),
		Weekly:         true,
	}
}

var testProviderID = mustUUID("7c9e6679-7425-40de-944b-e07fc1f90ae7")

func TestExpandWindowOneOff(t *testing.T) {
	w := weeklyTuesdayWindow()
	w.Weekly = false

	got := ExpandWindow(w, at(0, 0), at(23, 59))
	require.Len(t, got, 1)
	assert.Equal(t, iv(9, 0, 17, 0), got[0])

	// Outside the query range
	assert.Empty(t, ExpandWindow(w, at(17, 0), at(23, 59)))
}

func TestExpandWindowWeeklyRepeats(t *testing.T) {
	w := weeklyTuesdayWindow()

	from := at(0, 0)
	to := from.AddDate(0, 0, 21)

	got := ExpandWindow(w, from, to)
	require.Len(t, got, 3)
	for i, occ := range got {
		want := Interval{
			Start: at(9, 0).AddDate(0, 0, 7*i),
			End:   at(17, 0).AddDate(0, 0, 7*i),
		}
		assert.Equal(t, want, occ, "occurrence %d", i)
	}
}

func TestExpandWindowWeeklyClipsToQueryRange(t *testing.T) {
	w := weeklyTuesdayWindow()

	// Query cuts into the middle of the first occurrence.
	got := ExpandWindow(w, at(12, 0), at(23, 0))
	require.Len(t, got, 1)
	assert.Equal(t, iv(12, 0, 17, 0), got[0])
}

func TestExpandWindowWeeklyFarFutureSkipsAhead(t *testing.T) {
	w := weeklyTuesdayWindow()

	from := at(0, 0).AddDate(1, 0, 0) // one year out
	to := from.AddDate(0, 0, 7)

	got := ExpandWindow(w, from, to)
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.After(from) || got[0].Start.Equal(from))
	assert.Equal(t, 8*time.Hour, got[0].Duration())
}

func TestExpandWindowHonorsValidity(t *testing.T) {
	w := weeklyTuesdayWindow()
	until := at(0, 0).AddDate(0, 0, 10)
	w.ValidUntil = &until

	from := at(0, 0)
	to := from.AddDate(0, 0, 28)

	// Only the first two Tuesdays fall before valid_until... the second
	// one is 7 days in, the third at 14 days is past the cutoff.
	got := ExpandWindow(w, from, to)
	require.Len(t, got, 2)

	validFrom := at(0, 0).AddDate(0, 0, 5)
	w.ValidFrom = &validFrom
	got = ExpandWindow(w, from, to)
	require.Len(t, got, 1)
	assert.Equal(t, at(9, 0).AddDate(0, 0, 7), got[0].Start)
}

func TestExpandWindowRejectsMalformed(t *testing.T) {
	w := weeklyTuesdayWindow()
	w.EndTime = w.StartTime
	assert.Empty(t, ExpandWindow(w, at(0, 0), at(23, 0)))

	// A weekly window spanning a full week would self-overlap.
	w = weeklyTuesdayWindow()
	w.EndTime = w.StartTime.AddDate(0, 0, 7)
	assert.Empty(t, ExpandWindow(w, at(0, 0), at(23, 0)))
}
