package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser         Role = "user"
	RoleCareProvider Role = "care_provider"
	RoleAdmin        Role = "admin"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Terminal reports whether no further status transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Identity is the slice of an account the scheduling core needs.
// Accounts themselves are owned by the auth service.
type Identity struct {
	ID        uuid.UUID
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CareProviderProfile struct {
	ID               uuid.UUID
	IdentityID       uuid.UUID
	Specialty        string
	Bio              *string
	HourlyRateCents  int
	AcceptingClients bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailabilityWindow is a span during which a care provider is
// bookable. Weekly windows repeat the same span every 7 days inside
// [ValidFrom, ValidUntil]; one-off windows occur exactly once.
type AvailabilityWindow struct {
	ID             uuid.UUID
	CareProviderID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Weekly         bool
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	CreatedAt      time.Time
}

type Appointment struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CareProviderID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Status         AppointmentStatus
	CancelReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Interval returns the appointment's half-open booking interval.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
