package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solacecare/scheduling/internal/scheduling"
)

// IdentityResolver turns the boundary's authenticated identity id into
// an identity record. Authentication itself happens upstream; this
// layer only needs id and role.
type IdentityResolver interface {
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*scheduling.Identity, error)
}

type Handlers struct {
	svc        *scheduling.Service
	identities IdentityResolver
}

func NewHandlers(svc *scheduling.Service, identities IdentityResolver) *Handlers {
	return &Handlers{svc: svc, identities: identities}
}

// requester resolves the calling identity from the X-Identity-ID
// header set by the auth layer.
func (h *Handlers) requester(w http.ResponseWriter, r *http.Request) *scheduling.Identity {
	raw := r.Header.Get("X-Identity-ID")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "identity_required", "X-Identity-ID header is required")
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "X-Identity-ID must be a valid UUID")
		return nil
	}
	identity, err := h.identities.GetIdentityByID(r.Context(), id)
	if err != nil {
		if scheduling.KindOf(err) == scheduling.KindNotFound {
			writeError(w, http.StatusUnauthorized, "unknown_identity", "identity not found")
			return nil
		}
		writeServiceError(w, err)
		return nil
	}
	return identity
}

func (h *Handlers) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
		return
	}
	careProviderID, err := uuid.Parse(req.CareProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_care_provider_id", "care_provider_id must be a valid UUID")
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), userID, careProviderID, scheduling.Interval{Start: req.StartTime, End: req.EndTime}, requestedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id, requestedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	appts, err := h.svc.ListAppointments(r.Context(), requestedBy, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, requestedBy *scheduling.Identity) (*scheduling.Appointment, error) {
		return h.svc.ConfirmAppointment(ctx, id, requestedBy)
	})
}

func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
	}

	appt, err := h.svc.CancelAppointment(r.Context(), id, requestedBy, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, requestedBy *scheduling.Identity) (*scheduling.Appointment, error) {
		return h.svc.CompleteAppointment(ctx, id, requestedBy)
	})
}

func (h *Handlers) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), id, scheduling.Interval{Start: req.StartTime, End: req.EndTime}, requestedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// GetAvailability streams the provider's free intervals inside
// from..to. A limit query param caps how many slots are materialized,
// leaning on the resolver's lazy sequence.
func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	careProviderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
		return
	}
	limit := queryInt(r, "limit", 0)

	seq, err := h.svc.Resolver().Resolve(r.Context(), careProviderID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := []IntervalResponse{}
	for iv := range seq {
		out = append(out, IntervalResponse{StartTime: iv.Start, EndTime: iv.End})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateAvailabilityWindow(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	careProviderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CreateWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	window, err := h.svc.AddAvailabilityWindow(r.Context(), scheduling.AvailabilityWindow{
		CareProviderID: careProviderID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Weekly:         req.Weekly,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
	}, requestedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWindowResponse(window))
}

func (h *Handlers) ListAvailabilityWindows(w http.ResponseWriter, r *http.Request) {
	careProviderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	windows, err := h.svc.ListAvailabilityWindows(r.Context(), careProviderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]WindowResponse, 0, len(windows))
	for i := range windows {
		out = append(out, toWindowResponse(&windows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) DeleteAvailabilityWindow(w http.ResponseWriter, r *http.Request) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	careProviderID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	windowID, ok := parseIDParam(w, r, "windowID")
	if !ok {
		return
	}

	if err := h.svc.RemoveAvailabilityWindow(r.Context(), careProviderID, windowID, requestedBy); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toWindowResponse(w *scheduling.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:         w.ID,
		StartTime:  w.StartTime,
		EndTime:    w.EndTime,
		Weekly:     w.Weekly,
		ValidFrom:  w.ValidFrom,
		ValidUntil: w.ValidUntil,
	}
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, requestedBy *scheduling.Identity) (*scheduling.Appointment, error)) {
	requestedBy := h.requester(w, r)
	if requestedBy == nil {
		return
	}

	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := fn(r.Context(), id, requestedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse(time.RFC3339, r.URL.Query().Get(name))
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
