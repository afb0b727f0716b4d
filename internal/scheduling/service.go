package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/solacecare/scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// ServiceConfig bounds appointment durations and query spans. Zero
// values disable the corresponding bound.
type ServiceConfig struct {
	MinDuration    time.Duration
	MaxDuration    time.Duration
	MaxResolveSpan time.Duration
}

// Service is the sole mutator of appointment state. It enforces
// role-based rules, checks availability coverage and conflicts, and
// serializes bookings per care provider through the locker plus the
// repository's guarded transaction.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	resolver *Resolver
	detector *ConflictDetector
	cfg      ServiceConfig
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		resolver: NewResolver(repo, cfg.MaxResolveSpan),
		detector: NewConflictDetector(repo),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Resolver exposes the read-only availability resolver for the
// boundary layer's availability endpoint.
func (s *Service) Resolver() *Resolver { return s.resolver }

// CreateAppointment books an interval with a care provider on behalf
// of a user. User-initiated bookings start pending and must sit inside
// resolved availability; provider/admin-initiated bookings start
// confirmed and bypass the availability check since providers manage
// their own calendars. The conflict check always applies and is
// re-run inside the guarded write transaction.
func (s *Service) CreateAppointment(ctx context.Context, userID, careProviderID uuid.UUID, interval Interval, requestedBy *Identity) (*Appointment, error) {
	if requestedBy == nil {
		return nil, permissionError("identity_required", "an authenticated identity is required")
	}
	if !canBook(requestedBy, userID, careProviderID) {
		return nil, permissionError("cannot_book_for_others", "only the user, the care provider, or an admin may book this appointment")
	}

	if err := s.validateInterval(interval); err != nil {
		return nil, err
	}

	user, err := s.repo.GetIdentityByID(ctx, userID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, notFoundError("user_not_found", "user not found")
		}
		return nil, err
	}
	if user.Role != RoleUser || !user.Active {
		return nil, notFoundError("user_not_found", "user not found")
	}

	if err := s.loadBookableProvider(ctx, careProviderID, requestedBy); err != nil {
		return nil, err
	}

	if !actsAsProvider(requestedBy, careProviderID) {
		covered, err := s.resolver.Covers(ctx, careProviderID, interval)
		if err != nil {
			return nil, err
		}
		if !covered {
			return nil, availabilityError("outside_availability", "the care provider is not available during the requested time", intervalDetails(interval))
		}
	}

	// Advisory pre-check outside the lock for a fast rejection.
	conflicts, err := s.detector.Conflicts(ctx, careProviderID, interval, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if conflicts {
		return nil, conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(interval))
	}

	status := StatusPending
	if actsAsProvider(requestedBy, careProviderID) {
		status = StatusConfirmed
	}

	appt := Appointment{
		ID:             uuid.New(),
		UserID:         userID,
		CareProviderID: careProviderID,
		StartTime:      interval.Start,
		EndTime:        interval.End,
		Status:         status,
	}

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, careProviderID, func(lockCtx context.Context) error {
		// Authoritative guard: the repository re-checks overlap inside
		// the same transaction that writes the row.
		out, err := s.repo.CreateAppointmentGuarded(lockCtx, appt)
		if err != nil {
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, unavailableError("provider_busy", err)
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"user_id":          userID.String(),
		"care_provider_id": careProviderID.String(),
		"start_time":       created.StartTime,
		"end_time":         created.EndTime,
		"status":           string(created.Status),
	})

	return created, nil
}

// ConfirmAppointment moves a pending appointment to confirmed. Only
// the target care provider or an admin may confirm.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID, requestedBy *Identity) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canConfirm(requestedBy, appt) {
		return nil, permissionError("cannot_confirm", "only the care provider or an admin may confirm this appointment")
	}
	if appt.Status != StatusPending {
		return nil, invalidStateError("not_pending", "only a pending appointment can be confirmed")
	}

	updated, err := s.swapStatus(ctx, appt.ID, StatusPending, StatusConfirmed, nil)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// CancelAppointment transitions any non-terminal appointment to
// cancelled, recording an optional reason. Rows are never deleted;
// cancellation preserves audit history.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, requestedBy *Identity, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canCancel(requestedBy, appt) {
		return nil, permissionError("cannot_cancel", "only a party to the appointment or an admin may cancel it")
	}
	if appt.Status.Terminal() {
		return nil, invalidStateError("already_closed", "the appointment is already cancelled or completed")
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	updated, err := s.swapStatus(ctx, appt.ID, appt.Status, StatusCancelled, reasonPtr)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"reason": reason,
	})
	return updated, nil
}

// RescheduleAppointment re-runs the full booking validation pipeline
// against the new interval, ignoring the appointment's own slot, then
// atomically moves it under the per-provider guard. A confirmed
// appointment moved by the user drops back to pending so the provider
// can re-confirm; provider/admin moves keep the confirmed status.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newInterval Interval, requestedBy *Identity) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReschedule(requestedBy, appt) {
		return nil, permissionError("cannot_reschedule", "only a party to the appointment or an admin may reschedule it")
	}
	if appt.Status.Terminal() {
		return nil, invalidStateError("already_closed", "a cancelled or completed appointment cannot be rescheduled")
	}

	if err := s.validateInterval(newInterval); err != nil {
		return nil, err
	}

	if !actsAsProvider(requestedBy, appt.CareProviderID) {
		covered, err := s.resolver.Covers(ctx, appt.CareProviderID, newInterval)
		if err != nil {
			return nil, err
		}
		if !covered {
			return nil, availabilityError("outside_availability", "the care provider is not available during the requested time", intervalDetails(newInterval))
		}
	}

	conflicts, err := s.detector.Conflicts(ctx, appt.CareProviderID, newInterval, appt.ID)
	if err != nil {
		return nil, err
	}
	if conflicts {
		return nil, conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(newInterval))
	}

	status := appt.Status
	if status == StatusConfirmed && !actsAsProvider(requestedBy, appt.CareProviderID) {
		status = StatusPending
	}

	var moved *Appointment
	err = s.locker.WithProviderLock(ctx, appt.CareProviderID, func(lockCtx context.Context) error {
		out, err := s.repo.RescheduleAppointmentGuarded(lockCtx, appt.ID, newInterval, status)
		if err != nil {
			return err
		}
		moved = out
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, unavailableError("provider_busy", err)
		}
		return nil, err
	}

	s.logEvent(ctx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"start_time": moved.StartTime,
		"end_time":   moved.EndTime,
		"status":     string(moved.Status),
	})
	return moved, nil
}

// CompleteAppointment closes out a confirmed appointment once its end
// time has passed. Provider or admin only.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, requestedBy *Identity) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canComplete(requestedBy, appt) {
		return nil, permissionError("cannot_complete", "only the care provider or an admin may complete this appointment")
	}
	if appt.Status != StatusConfirmed {
		return nil, invalidStateError("not_confirmed", "only a confirmed appointment can be completed")
	}
	if appt.EndTime.After(s.now()) {
		return nil, invalidStateError("not_finished", "the appointment has not finished yet")
	}

	updated, err := s.swapStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

// GetAppointment returns a single appointment visible to the caller.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, requestedBy *Identity) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(requestedBy, appt) {
		return nil, permissionError("cannot_view", "you may only access your own appointments")
	}
	return appt, nil
}

// ListAppointments returns the appointments visible to the caller:
// users see their own, providers the ones they deliver, admins all.
func (s *Service) ListAppointments(ctx context.Context, requestedBy *Identity, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	switch requestedBy.Role {
	case RoleUser:
		return s.repo.ListAppointmentsForUser(ctx, requestedBy.ID, limit, offset)
	case RoleCareProvider:
		return s.repo.ListAppointmentsForProvider(ctx, requestedBy.ID, limit, offset)
	case RoleAdmin:
		return s.repo.ListAllAppointments(ctx, limit, offset)
	}
	return nil, permissionError("unknown_role", "the caller's role cannot list appointments")
}

// CancelStalePending is run periodically by the sweep worker. Pending
// appointments whose start time passed without confirmation are
// cancelled so their slots free up again.
func (s *Service) CancelStalePending(ctx context.Context) (int, error) {
	stale, err := s.repo.FindStalePending(ctx, s.now())
	if err != nil {
		return 0, err
	}

	reason := "not confirmed before start time"
	cancelled := 0
	for _, appt := range stale {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusCancelled, &reason)
		if err != nil {
			if KindOf(err) == KindNotFound {
				// Lost the race against a confirm or cancel.
				continue
			}
			log.Printf("failed to cancel stale appointment %s: %v", appt.ID, err)
			continue
		}
		cancelled++
		s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
			"reason": reason,
		})
	}
	return cancelled, nil
}

// swapStatus runs a compare-and-swap transition and maps a missed swap
// (someone changed the row first) onto the invalid_state kind.
func (s *Service) swapStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error) {
	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to, reason)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, invalidStateError("status_changed", "the appointment status changed while processing the request")
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) validateInterval(interval Interval) error {
	if !interval.Valid() {
		return validationError("invalid_interval", "end_time must be after start_time")
	}
	if !interval.Start.After(s.now()) {
		return validationError("interval_in_past", "an appointment cannot be scheduled in the past")
	}
	if s.cfg.MinDuration > 0 && interval.Duration() < s.cfg.MinDuration {
		return validationError("interval_too_short", "the appointment is shorter than the minimum duration")
	}
	if s.cfg.MaxDuration > 0 && interval.Duration() > s.cfg.MaxDuration {
		return validationError("interval_too_long", "the appointment is longer than the maximum duration")
	}
	return nil
}

// loadBookableProvider verifies the care provider identity, role, and
// profile. The accepting-clients flag only gates user-initiated
// bookings; a provider can always book their own calendar.
func (s *Service) loadBookableProvider(ctx context.Context, careProviderID uuid.UUID, requestedBy *Identity) error {
	provider, err := s.repo.GetIdentityByID(ctx, careProviderID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return notFoundError("care_provider_not_found", "care provider not found")
		}
		return err
	}
	if provider.Role != RoleCareProvider || !provider.Active {
		return notFoundError("care_provider_not_found", "care provider not found")
	}

	profile, err := s.repo.GetProfileByIdentityID(ctx, careProviderID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return notFoundError("care_provider_profile_not_found", "care provider profile not found")
		}
		return err
	}
	if !profile.AcceptingClients && !actsAsProvider(requestedBy, careProviderID) {
		return availabilityError("not_accepting_clients", "the care provider is not currently accepting new clients", nil)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func intervalDetails(iv Interval) map[string]any {
	return map[string]any{
		"start_time": iv.Start,
		"end_time":   iv.End,
	}
}
