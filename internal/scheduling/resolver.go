package scheduling

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
)

// Resolver expands a care provider's availability windows into the
// concrete free intervals inside a query range, net of booked
// appointments. It is read-only; the result of a resolve is advisory
// and the authoritative conflict check happens inside the write
// transaction.
type Resolver struct {
	repo    Repository
	maxSpan time.Duration
}

func NewResolver(repo Repository, maxSpan time.Duration) *Resolver {
	return &Resolver{repo: repo, maxSpan: maxSpan}
}

// Resolve returns the free intervals for the provider inside
// [from, to) as a lazy, restartable sequence ordered by start time.
// Both stores are read once, up front, so every iteration over the
// sequence observes the same snapshot. Callers may stop after the
// first N intervals without paying for the rest of the range.
func (r *Resolver) Resolve(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) (iter.Seq[Interval], error) {
	if !from.Before(to) {
		return nil, validationError("invalid_range", "to must be after from")
	}
	if r.maxSpan > 0 && to.Sub(from) > r.maxSpan {
		return nil, validationError("range_too_large", "requested availability range exceeds the maximum span")
	}

	windows, err := r.repo.ListWindowsIntersecting(ctx, careProviderID, from, to)
	if err != nil {
		return nil, err
	}
	booked, err := r.repo.ListActiveAppointments(ctx, careProviderID, from, to)
	if err != nil {
		return nil, err
	}

	busy := make([]Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, a.Interval())
	}
	busy = MergeIntervals(busy)

	return func(yield func(Interval) bool) {
		var free []Interval
		for _, w := range windows {
			free = append(free, ExpandWindow(w, from, to)...)
		}
		for _, iv := range SubtractBusy(free, busy) {
			if !yield(iv) {
				return
			}
		}
	}, nil
}

// Covers reports whether candidate lies fully inside the provider's
// declared availability. Bookings are deliberately not subtracted
// here: collisions with existing appointments are the conflict
// detector's verdict, not an availability one, and a reschedule must
// not collide with the slot it is vacating.
func (r *Resolver) Covers(ctx context.Context, careProviderID uuid.UUID, candidate Interval) (bool, error) {
	if !candidate.Valid() {
		return false, validationError("invalid_interval", "end_time must be after start_time")
	}

	windows, err := r.repo.ListWindowsIntersecting(ctx, careProviderID, candidate.Start, candidate.End)
	if err != nil {
		return false, err
	}

	var occurrences []Interval
	for _, w := range windows {
		occurrences = append(occurrences, ExpandWindow(w, candidate.Start, candidate.End)...)
	}
	// Touching windows merge, so a candidate spanning two back-to-back
	// declarations still counts as covered.
	for _, iv := range MergeIntervals(occurrences) {
		if iv.Contains(candidate) {
			return true, nil
		}
	}
	return false, nil
}
