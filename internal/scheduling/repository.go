package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
// Implementations map storage-level "no rows" onto the not_found
// taxonomy kind and everything else onto service_unavailable.
type Repository interface {
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*CareProviderProfile, error)

	// Availability windows
	CreateAvailabilityWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error)
	DeleteAvailabilityWindow(ctx context.Context, careProviderID, windowID uuid.UUID) error
	ListAvailabilityWindows(ctx context.Context, careProviderID uuid.UUID) ([]AvailabilityWindow, error)
	// ListWindowsIntersecting returns windows whose effective span can
	// produce occurrences inside [from, to).
	ListWindowsIntersecting(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListActiveAppointments returns pending/confirmed appointments for
	// the provider overlapping [from, to), ordered by start time.
	ListActiveAppointments(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListAppointmentsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsForProvider(ctx context.Context, careProviderID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAllAppointments(ctx context.Context, limit, offset int) ([]Appointment, error)

	// HasActiveOverlap is the conflict probe: true iff a
	// pending/confirmed appointment of the provider overlaps candidate.
	// exclude, when non-nil, ignores that appointment id.
	HasActiveOverlap(ctx context.Context, careProviderID uuid.UUID, candidate Interval, exclude *uuid.UUID) (bool, error)

	// CreateAppointmentGuarded inserts the appointment inside a single
	// transaction that serializes on the care provider and re-checks
	// for overlap. Returns a conflict error when the re-check fails.
	CreateAppointmentGuarded(ctx context.Context, appt Appointment) (*Appointment, error)

	// RescheduleAppointmentGuarded moves the appointment to a new
	// interval under the same per-provider guard, setting status.
	RescheduleAppointmentGuarded(ctx context.Context, id uuid.UUID, newInterval Interval, status AppointmentStatus) (*Appointment, error)

	// UpdateAppointmentStatus is a compare-and-swap transition: the row
	// is updated only if its current status equals from. A missed swap
	// surfaces as not_found, which the service turns into an
	// invalid_state error after re-reading.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error)

	// FindStalePending returns pending appointments whose start time
	// has passed without confirmation.
	FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
