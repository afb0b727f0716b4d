package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. CreateAppointmentGuarded and
// RescheduleAppointmentGuarded serialize on a mutex so concurrency
// tests exercise the same one-winner guarantee the pg implementation
// gets from its advisory lock.
type memRepo struct {
	mu           sync.Mutex
	identities   map[uuid.UUID]Identity
	profiles     map[uuid.UUID]CareProviderProfile // keyed by identity id
	windows      map[uuid.UUID]AvailabilityWindow
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		identities:   make(map[uuid.UUID]Identity),
		profiles:     make(map[uuid.UUID]CareProviderProfile),
		windows:      make(map[uuid.UUID]AvailabilityWindow),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memRepo) addIdentity(role Role) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.identities[id] = Identity{ID: id, Role: role, Active: true}
	return id
}

func (m *memRepo) addProvider() uuid.UUID {
	id := m.addIdentity(RoleCareProvider)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id] = CareProviderProfile{
		ID:               uuid.New(),
		IdentityID:       id,
		Specialty:        "Counselling",
		AcceptingClients: true,
	}
	return id
}

func (m *memRepo) addWindow(w AvailabilityWindow) AvailabilityWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.windows[w.ID] = w
	return w
}

func (m *memRepo) addAppointment(a Appointment) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appointments[a.ID] = a
	return a
}

func (m *memRepo) GetIdentityByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[id]
	if !ok {
		return nil, notFoundError("identity_not_found", "identity not found")
	}
	return &i, nil
}

func (m *memRepo) GetProfileByIdentityID(_ context.Context, identityID uuid.UUID) (*CareProviderProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[identityID]
	if !ok {
		return nil, notFoundError("care_provider_profile_not_found", "care provider profile not found")
	}
	return &p, nil
}

func (m *memRepo) CreateAvailabilityWindow(_ context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.CreatedAt = time.Now()
	m.windows[w.ID] = w
	return &w, nil
}

func (m *memRepo) DeleteAvailabilityWindow(_ context.Context, careProviderID, windowID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowID]
	if !ok || w.CareProviderID != careProviderID {
		return notFoundError("availability_window_not_found", "availability window not found")
	}
	delete(m.windows, windowID)
	return nil
}

func (m *memRepo) ListAvailabilityWindows(_ context.Context, careProviderID uuid.UUID) ([]AvailabilityWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range m.windows {
		if w.CareProviderID == careProviderID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) ListWindowsIntersecting(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	all, err := m.ListAvailabilityWindows(ctx, careProviderID)
	if err != nil {
		return nil, err
	}
	var out []AvailabilityWindow
	for _, w := range all {
		if len(ExpandWindow(w, from, to)) > 0 {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, notFoundError("appointment_not_found", "appointment not found")
	}
	return &a, nil
}

func (m *memRepo) ListActiveAppointments(_ context.Context, careProviderID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	query := Interval{Start: from, End: to}
	var out []Appointment
	for _, a := range m.appointments {
		if a.CareProviderID == careProviderID && activeStatus(a.Status) && a.Interval().Overlaps(query) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) ListAppointmentsForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.listFiltered(func(a Appointment) bool { return a.UserID == userID }, limit, offset)
}

func (m *memRepo) ListAppointmentsForProvider(_ context.Context, careProviderID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.listFiltered(func(a Appointment) bool { return a.CareProviderID == careProviderID }, limit, offset)
}

func (m *memRepo) ListAllAppointments(_ context.Context, limit, offset int) ([]Appointment, error) {
	return m.listFiltered(func(Appointment) bool { return true }, limit, offset)
}

func (m *memRepo) listFiltered(keep func(Appointment) bool, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) HasActiveOverlap(_ context.Context, careProviderID uuid.UUID, candidate Interval, exclude *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapLocked(careProviderID, candidate, exclude), nil
}

func (m *memRepo) overlapLocked(careProviderID uuid.UUID, candidate Interval, exclude *uuid.UUID) bool {
	for _, a := range m.appointments {
		if a.CareProviderID != careProviderID || !activeStatus(a.Status) {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.Interval().Overlaps(candidate) {
			return true
		}
	}
	return false
}

func (m *memRepo) CreateAppointmentGuarded(_ context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlapLocked(appt.CareProviderID, appt.Interval(), nil) {
		return nil, conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(appt.Interval()))
	}
	now := time.Now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	m.appointments[appt.ID] = appt
	return &appt, nil
}

func (m *memRepo) RescheduleAppointmentGuarded(_ context.Context, id uuid.UUID, newInterval Interval, status AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, notFoundError("appointment_not_found", "appointment not found")
	}
	if a.Status.Terminal() {
		return nil, invalidStateError("already_closed", "a cancelled or completed appointment cannot be rescheduled")
	}
	if m.overlapLocked(a.CareProviderID, newInterval, &id) {
		return nil, conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(newInterval))
	}
	a.StartTime = newInterval.Start
	a.EndTime = newInterval.End
	a.Status = status
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, notFoundError("appointment_not_found", "appointment not found")
	}
	a.Status = to
	if cancelReason != nil {
		a.CancelReason = cancelReason
	}
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *memRepo) FindStalePending(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusPending && a.StartTime.Before(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func activeStatus(s AppointmentStatus) bool {
	return s == StatusPending || s == StatusConfirmed
}

// noopLocker runs the critical section directly; the memRepo's mutex
// already provides the serialization the tests rely on.
type noopLocker struct{}

func (noopLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
