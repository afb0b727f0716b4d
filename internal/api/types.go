package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solacecare/scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	UserID         string    `json:"user_id"`
	CareProviderID string    `json:"care_provider_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

type RescheduleAppointmentRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateWindowRequest struct {
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	Weekly     bool       `json:"weekly"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	CareProviderID uuid.UUID `json:"care_provider_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	CancelReason   *string   `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		CareProviderID: a.CareProviderID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		CancelReason:   a.CancelReason,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type IntervalResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type WindowResponse struct {
	ID         uuid.UUID  `json:"id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	Weekly     bool       `json:"weekly"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeServiceError maps taxonomy kinds onto transport status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var schedErr *scheduling.Error
	status := http.StatusInternalServerError
	body := ErrorBody{Code: "internal_error", Message: "internal error"}

	if errors.As(err, &schedErr) {
		switch schedErr.Kind {
		case scheduling.KindValidation:
			status = http.StatusBadRequest
		case scheduling.KindNotFound:
			status = http.StatusNotFound
		case scheduling.KindPermission:
			status = http.StatusForbidden
		case scheduling.KindAvailability, scheduling.KindConflict, scheduling.KindInvalidState:
			status = http.StatusConflict
		case scheduling.KindServiceUnavailable:
			status = http.StatusServiceUnavailable
		}
		body = ErrorBody{Code: schedErr.Code, Message: schedErr.Message, Details: schedErr.Details}
	}

	writeJSON(w, status, ErrorResponse{Error: body})
}
