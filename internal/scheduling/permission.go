package scheduling

import "github.com/google/uuid"

// Permission checks are explicit per-operation functions over the
// closed role set rather than role-chain conditionals scattered
// through the service.

// canBook: the user themself, the target care provider, or an admin.
func canBook(requestedBy *Identity, userID, careProviderID uuid.UUID) bool {
	switch requestedBy.Role {
	case RoleUser:
		return requestedBy.ID == userID
	case RoleCareProvider:
		return requestedBy.ID == careProviderID
	case RoleAdmin:
		return true
	}
	return false
}

// canConfirm: only the target care provider or an admin.
func canConfirm(requestedBy *Identity, appt *Appointment) bool {
	switch requestedBy.Role {
	case RoleCareProvider:
		return requestedBy.ID == appt.CareProviderID
	case RoleAdmin:
		return true
	}
	return false
}

// canCancel: either party to the appointment or an admin.
func canCancel(requestedBy *Identity, appt *Appointment) bool {
	switch requestedBy.Role {
	case RoleUser:
		return requestedBy.ID == appt.UserID
	case RoleCareProvider:
		return requestedBy.ID == appt.CareProviderID
	case RoleAdmin:
		return true
	}
	return false
}

// canReschedule mirrors canCancel: either party or an admin.
func canReschedule(requestedBy *Identity, appt *Appointment) bool {
	return canCancel(requestedBy, appt)
}

// canComplete mirrors canConfirm: provider or admin only.
func canComplete(requestedBy *Identity, appt *Appointment) bool {
	return canConfirm(requestedBy, appt)
}

// canView: either party or an admin.
func canView(requestedBy *Identity, appt *Appointment) bool {
	return canCancel(requestedBy, appt)
}

// canManageAvailability: the provider managing their own calendar, or
// an admin.
func canManageAvailability(requestedBy *Identity, careProviderID uuid.UUID) bool {
	switch requestedBy.Role {
	case RoleCareProvider:
		return requestedBy.ID == careProviderID
	case RoleAdmin:
		return true
	}
	return false
}

// actsAsProvider reports whether the booking identity stands in for
// the care provider, which makes the booking start out confirmed.
func actsAsProvider(requestedBy *Identity, careProviderID uuid.UUID) bool {
	if requestedBy.Role == RoleAdmin {
		return true
	}
	return requestedBy.Role == RoleCareProvider && requestedBy.ID == careProviderID
}
