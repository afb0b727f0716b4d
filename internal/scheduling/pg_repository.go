package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements Repository on a pgx pool. Storage errors are
// wrapped into the service_unavailable kind so no driver detail leaks
// past the service.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func storageError(op string, err error) error {
	return unavailableError("storage_"+op, err)
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	err := row.Scan(
		&i.ID,
		&i.Role,
		&i.Active,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("identity_not_found", "identity not found")
		}
		return nil, storageError("scan_identity", err)
	}
	return &i, nil
}

func scanProfile(row pgx.Row) (*CareProviderProfile, error) {
	var p CareProviderProfile
	var bio *string

	err := row.Scan(
		&p.ID,
		&p.IdentityID,
		&p.Specialty,
		&bio,
		&p.HourlyRateCents,
		&p.AcceptingClients,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("care_provider_profile_not_found", "care provider profile not found")
		}
		return nil, storageError("scan_profile", err)
	}

	p.Bio = bio
	return &p, nil
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var validFrom, validUntil *time.Time

	err := row.Scan(
		&w.ID,
		&w.CareProviderID,
		&w.StartTime,
		&w.EndTime,
		&w.Weekly,
		&validFrom,
		&validUntil,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("availability_window_not_found", "availability window not found")
		}
		return nil, storageError("scan_window", err)
	}

	w.ValidFrom = validFrom
	w.ValidUntil = validUntil
	return &w, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.CareProviderID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&cancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("appointment_not_found", "appointment not found")
		}
		return nil, storageError("scan_appointment", err)
	}

	a.CancelReason = cancelReason
	return &a, nil
}

const appointmentColumns = `id, user_id, care_provider_id, start_time, end_time, status, cancel_reason, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetIdentityByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, role, is_active, created_at, updated_at
		FROM identities
		WHERE id = $1
	`, id)
	return scanIdentity(row)
}

func (r *PgRepository) GetProfileByIdentityID(ctx context.Context, identityID uuid.UUID) (*CareProviderProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, specialty, bio, hourly_rate_cents, accepting_clients, created_at, updated_at
		FROM care_provider_profiles
		WHERE identity_id = $1
	`, identityID)
	return scanProfile(row)
}

func (r *PgRepository) CreateAvailabilityWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_windows (id, care_provider_id, start_time, end_time, weekly, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, care_provider_id, start_time, end_time, weekly, valid_from, valid_until, created_at
	`, w.ID, w.CareProviderID, w.StartTime, w.EndTime, w.Weekly, w.ValidFrom, w.ValidUntil)
	return scanWindow(row)
}

func (r *PgRepository) DeleteAvailabilityWindow(ctx context.Context, careProviderID, windowID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE id = $1 AND care_provider_id = $2
	`, windowID, careProviderID)
	if err != nil {
		return storageError("delete_window", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError("availability_window_not_found", "availability window not found")
	}
	return nil
}

func (r *PgRepository) ListAvailabilityWindows(ctx context.Context, careProviderID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, care_provider_id, start_time, end_time, weekly, valid_from, valid_until, created_at
		FROM availability_windows
		WHERE care_provider_id = $1
		ORDER BY start_time
	`, careProviderID)
	if err != nil {
		return nil, storageError("list_windows", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (r *PgRepository) ListWindowsIntersecting(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	// A one-off window intersects when its own span does; a weekly
	// window can still produce occurrences after its first span, so it
	// only drops out once the validity range ends before the query.
	rows, err := r.pool.Query(ctx, `
		SELECT id, care_provider_id, start_time, end_time, weekly, valid_from, valid_until, created_at
		FROM availability_windows
		WHERE care_provider_id = $1
		  AND (valid_from IS NULL OR valid_from < $3)
		  AND (valid_until IS NULL OR valid_until > $2)
		  AND (weekly OR (start_time < $3 AND end_time > $2))
		  AND (NOT weekly OR start_time < $3)
		ORDER BY start_time
	`, careProviderID, from, to)
	if err != nil {
		return nil, storageError("list_windows", err)
	}
	defer rows.Close()
	return collectWindows(rows)
}

func collectWindows(rows pgx.Rows) ([]AvailabilityWindow, error) {
	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list_windows", err)
	}
	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveAppointments(ctx context.Context, careProviderID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE care_provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, careProviderID, from, to)
	if err != nil {
		return nil, storageError("list_active", err)
	}
	defer rows.Close()
	return collectAppointments(rows, "list_active")
}

func (r *PgRepository) ListAppointmentsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, storageError("list_for_user", err)
	}
	defer rows.Close()
	return collectAppointments(rows, "list_for_user")
}

func (r *PgRepository) ListAppointmentsForProvider(ctx context.Context, careProviderID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE care_provider_id = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, careProviderID, limit, offset)
	if err != nil {
		return nil, storageError("list_for_provider", err)
	}
	defer rows.Close()
	return collectAppointments(rows, "list_for_provider")
}

func (r *PgRepository) ListAllAppointments(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY start_time
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storageError("list_all", err)
	}
	defer rows.Close()
	return collectAppointments(rows, "list_all")
}

func collectAppointments(rows pgx.Rows, op string) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}
	return result, nil
}

const overlapQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM appointments
		WHERE care_provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		  AND ($4::uuid IS NULL OR id <> $4)
	)
`

func (r *PgRepository) HasActiveOverlap(ctx context.Context, careProviderID uuid.UUID, candidate Interval, exclude *uuid.UUID) (bool, error) {
	var overlaps bool
	err := r.pool.QueryRow(ctx, overlapQuery, careProviderID, candidate.Start, candidate.End, exclude).Scan(&overlaps)
	if err != nil {
		return false, storageError("overlap_check", err)
	}
	return overlaps, nil
}

// CreateAppointmentGuarded serializes on the care provider with a
// transaction-scoped advisory lock, re-checks for overlap against a
// consistent read, and inserts the row. Commit or nothing.
func (r *PgRepository) CreateAppointmentGuarded(ctx context.Context, appt Appointment) (*Appointment, error) {
	var created *Appointment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockProvider(ctx, tx, appt.CareProviderID); err != nil {
			return err
		}

		var overlaps bool
		err := tx.QueryRow(ctx, overlapQuery, appt.CareProviderID, appt.StartTime, appt.EndTime, nil).Scan(&overlaps)
		if err != nil {
			return storageError("overlap_check", err)
		}
		if overlaps {
			return conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(appt.Interval()))
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, user_id, care_provider_id, start_time, end_time, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			RETURNING `+appointmentColumns+`
		`, appt.ID, appt.UserID, appt.CareProviderID, appt.StartTime, appt.EndTime, appt.Status)

		out, err := scanAppointment(row)
		if err != nil {
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		var schedErr *Error
		if errors.As(err, &schedErr) {
			return nil, schedErr
		}
		return nil, storageError("create_appointment", err)
	}
	return created, nil
}

// RescheduleAppointmentGuarded moves an appointment under the same
// per-provider guard as creation.
func (r *PgRepository) RescheduleAppointmentGuarded(ctx context.Context, id uuid.UUID, newInterval Interval, status AppointmentStatus) (*Appointment, error) {
	var moved *Appointment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id)
		current, err := scanAppointment(row)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return invalidStateError("already_closed", "a cancelled or completed appointment cannot be rescheduled")
		}

		if err := lockProvider(ctx, tx, current.CareProviderID); err != nil {
			return err
		}

		var overlaps bool
		err = tx.QueryRow(ctx, overlapQuery, current.CareProviderID, newInterval.Start, newInterval.End, &id).Scan(&overlaps)
		if err != nil {
			return storageError("overlap_check", err)
		}
		if overlaps {
			return conflictError("slot_taken", "the requested time slot conflicts with an existing appointment", intervalDetails(newInterval))
		}

		row = tx.QueryRow(ctx, `
			UPDATE appointments
			SET start_time = $2,
			    end_time = $3,
			    status = $4,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns+`
		`, id, newInterval.Start, newInterval.End, status)

		out, err := scanAppointment(row)
		if err != nil {
			return err
		}
		moved = out
		return nil
	})
	if err != nil {
		var schedErr *Error
		if errors.As(err, &schedErr) {
			return nil, schedErr
		}
		return nil, storageError("reschedule_appointment", err)
	}
	return moved, nil
}

// lockProvider takes a transaction-scoped advisory lock keyed on the
// provider id, serializing concurrent booking writes per provider.
func lockProvider(ctx context.Context, tx pgx.Tx, careProviderID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, careProviderID)
	if err != nil {
		return storageError("provider_lock", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, cancelReason)

	return scanAppointment(row)
}

func (r *PgRepository) FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND start_time < $1
	`, now)
	if err != nil {
		return nil, storageError("find_stale", err)
	}
	defer rows.Close()
	return collectAppointments(rows, "find_stale")
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storageError("insert_event", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
