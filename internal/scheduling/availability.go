package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AddAvailabilityWindow declares a bookable span for a care provider.
// Windows of the same provider must not overlap each other; for weekly
// windows the span must be shorter than a week so repetitions stay
// disjoint.
func (s *Service) AddAvailabilityWindow(ctx context.Context, w AvailabilityWindow, requestedBy *Identity) (*AvailabilityWindow, error) {
	if requestedBy == nil || !canManageAvailability(requestedBy, w.CareProviderID) {
		return nil, permissionError("cannot_manage_availability", "only the care provider or an admin may manage availability")
	}

	base := Interval{Start: w.StartTime, End: w.EndTime}
	if !base.Valid() {
		return nil, validationError("invalid_interval", "end_time must be after start_time")
	}
	if w.Weekly && base.Duration() >= 7*24*time.Hour {
		return nil, validationError("window_too_long", "a weekly window must span less than a week")
	}
	if w.ValidFrom != nil && w.ValidUntil != nil && !w.ValidFrom.Before(*w.ValidUntil) {
		return nil, validationError("invalid_validity", "valid_until must be after valid_from")
	}

	if err := s.checkWindowOverlap(ctx, w); err != nil {
		return nil, err
	}

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return s.repo.CreateAvailabilityWindow(ctx, w)
}

// RemoveAvailabilityWindow deletes a window. Appointments already
// booked inside the window stay honored; removal only stops new
// bookings from resolving into it.
func (s *Service) RemoveAvailabilityWindow(ctx context.Context, careProviderID, windowID uuid.UUID, requestedBy *Identity) error {
	if requestedBy == nil || !canManageAvailability(requestedBy, careProviderID) {
		return permissionError("cannot_manage_availability", "only the care provider or an admin may manage availability")
	}
	return s.repo.DeleteAvailabilityWindow(ctx, careProviderID, windowID)
}

// ListAvailabilityWindows returns a provider's declared windows. The
// declarations themselves are not sensitive, so any authenticated
// identity may read them.
func (s *Service) ListAvailabilityWindows(ctx context.Context, careProviderID uuid.UUID) ([]AvailabilityWindow, error) {
	return s.repo.ListAvailabilityWindows(ctx, careProviderID)
}

// checkWindowOverlap compares the new window's occurrences over a
// probe range against every existing window of the provider.
func (s *Service) checkWindowOverlap(ctx context.Context, w AvailabilityWindow) error {
	existing, err := s.repo.ListAvailabilityWindows(ctx, w.CareProviderID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	// A week of occurrences starting at the new window is enough to
	// catch any weekly/one-off collision pattern.
	probeFrom := w.StartTime.Add(-7 * 24 * time.Hour)
	probeTo := w.EndTime.Add(7 * 24 * time.Hour)

	candidate := ExpandWindow(w, probeFrom, probeTo)
	for _, other := range existing {
		if other.ID == w.ID {
			continue
		}
		for _, occ := range ExpandWindow(other, probeFrom, probeTo) {
			for _, c := range candidate {
				if c.Overlaps(occ) {
					return validationError("window_overlap", "the window overlaps an existing availability window")
				}
			}
		}
	}
	return nil
}
