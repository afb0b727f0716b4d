package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAvailabilityWindow(t *testing.T) {
	repo := newMemRepo()
	provider := repo.addProvider()
	svc := newTestService(repo)
	by := identity(repo, provider)

	w, err := svc.AddAvailabilityWindow(context.Background(), AvailabilityWindow{
		CareProviderID: provider,
		StartTime:      at(9, 0),
		EndTime:        at(12, 0),
		Weekly:         true,
	}, by)
	require.NoError(t, err)
	assert.NotEqual(t, w.ID.String(), "00000000-0000-0000-0000-000000000000")

	listed, err := svc.ListAvailabilityWindows(context.Background(), provider)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestAddAvailabilityWindowRejectsMalformed(t *testing.T) {
	repo := newMemRepo()
	provider := repo.addProvider()
	svc := newTestService(repo)
	by := identity(repo, provider)

	tests := []struct {
		name string
		w    AvailabilityWindow
	}{
		{"inverted", AvailabilityWindow{CareProviderID: provider, StartTime: at(12, 0), EndTime: at(9, 0)}},
		{"weekly spanning a week", AvailabilityWindow{
			CareProviderID: provider,
			StartTime:      at(9, 0),
			EndTime:        at(9, 0).Add(8 * 24 * time.Hour),
			Weekly:         true,
		}},
		{"validity inverted", AvailabilityWindow{
			CareProviderID: provider,
			StartTime:      at(9, 0),
			EndTime:        at(12, 0),
			ValidFrom:      ptrTime(at(12, 0)),
			ValidUntil:     ptrTime(at(9, 0)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddAvailabilityWindow(context.Background(), tt.w, by)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestAddAvailabilityWindowRejectsOverlap(t *testing.T) {
	repo := newMemRepo()
	provider := repo.addProvider()
	svc := newTestService(repo)
	by := identity(repo, provider)

	_, err := svc.AddAvailabilityWindow(context.Background(), AvailabilityWindow{
		CareProviderID: provider,
		StartTime:      at(9, 0),
		EndTime:        at(12, 0),
		Weekly:         true,
	}, by)
	require.NoError(t, err)

	// A one-off colliding with a future repetition of the weekly
	// window is rejected, not just same-day collisions.
	_, err = svc.AddAvailabilityWindow(context.Background(), AvailabilityWindow{
		CareProviderID: provider,
		StartTime:      at(11, 0).Add(7 * 24 * time.Hour),
		EndTime:        at(13, 0).Add(7 * 24 * time.Hour),
	}, by)
	assert.Equal(t, KindValidation, KindOf(err))

	// Back-to-back windows are fine.
	_, err = svc.AddAvailabilityWindow(context.Background(), AvailabilityWindow{
		CareProviderID: provider,
		StartTime:      at(12, 0),
		EndTime:        at(15, 0),
		Weekly:         true,
	}, by)
	assert.NoError(t, err)
}

func TestAvailabilityWindowPermission(t *testing.T) {
	repo := newMemRepo()
	provider := repo.addProvider()
	other := repo.addProvider()
	user := repo.addIdentity(RoleUser)
	admin := repo.addIdentity(RoleAdmin)
	svc := newTestService(repo)

	w := AvailabilityWindow{CareProviderID: provider, StartTime: at(9, 0), EndTime: at(12, 0)}

	_, err := svc.AddAvailabilityWindow(context.Background(), w, identity(repo, user))
	assert.Equal(t, KindPermission, KindOf(err))

	_, err = svc.AddAvailabilityWindow(context.Background(), w, identity(repo, other))
	assert.Equal(t, KindPermission, KindOf(err))

	created, err := svc.AddAvailabilityWindow(context.Background(), w, identity(repo, admin))
	require.NoError(t, err)

	err = svc.RemoveAvailabilityWindow(context.Background(), provider, created.ID, identity(repo, user))
	assert.Equal(t, KindPermission, KindOf(err))

	err = svc.RemoveAvailabilityWindow(context.Background(), provider, created.ID, identity(repo, provider))
	assert.NoError(t, err)
}

func TestRemoveWindowKeepsExistingBookings(t *testing.T) {
	repo := newMemRepo()
	provider, user, _ := tuesdayCalendar(repo)
	svc := newTestService(repo)

	appt, err := svc.CreateAppointment(context.Background(), user, provider, iv(10, 0, 11, 0), identity(repo, user))
	require.NoError(t, err)

	windows, err := svc.ListAvailabilityWindows(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	require.NoError(t, svc.RemoveAvailabilityWindow(context.Background(), provider, windows[0].ID, identity(repo, provider)))

	// The existing appointment stays honored.
	got, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// But the slot no longer resolves for new bookings.
	_, err = svc.CreateAppointment(context.Background(), user, provider, iv(14, 0, 15, 0), identity(repo, user))
	assert.Equal(t, KindAvailability, KindOf(err))
}

func ptrTime(t time.Time) *time.Time { return &t }
