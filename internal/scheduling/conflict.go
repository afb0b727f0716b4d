package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// ConflictDetector answers whether a candidate interval collides with
// an existing pending or confirmed appointment of a care provider.
// The same overlap probe runs again inside the guarded write
// transaction; this standalone form serves pre-checks and tests.
type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// Conflicts reports whether candidate overlaps any active appointment
// for the provider. exclude, when not uuid.Nil, ignores that
// appointment so a reschedule does not collide with itself.
func (d *ConflictDetector) Conflicts(ctx context.Context, careProviderID uuid.UUID, candidate Interval, exclude uuid.UUID) (bool, error) {
	if !candidate.Valid() {
		return false, validationError("invalid_interval", "end_time must be after start_time")
	}
	var excludePtr *uuid.UUID
	if exclude != uuid.Nil {
		excludePtr = &exclude
	}
	return d.repo.HasActiveOverlap(ctx, careProviderID, candidate, excludePtr)
}
