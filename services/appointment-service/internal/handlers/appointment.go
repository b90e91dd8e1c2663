package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wellnest-app/wellnest/services/appointment-service/internal/appointment"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/model"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/notify"
)

type AppointmentHandler struct {
	svc      *appointment.Service
	notifier *notify.Dispatcher
	logger   *slog.Logger
}

func NewAppointmentHandler(svc *appointment.Service, notifier *notify.Dispatcher, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		svc:      svc,
		notifier: notifier,
		logger:   logger,
	}
}

type appointmentResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	SpecialistID    string `json:"specialist_id"`
	AppointmentDate string `json:"appointment_date"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		SpecialistID:    a.SpecialistID,
		AppointmentDate: a.AppointmentDate.UTC().Format(time.RFC3339),
		Status:          string(a.Status),
		Type:            string(a.Type),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createAppointmentRequest struct {
	UserID          string `json:"user_id"`
	SpecialistID    string `json:"specialist_id"`
	AppointmentDate string `json:"appointment_date"`
	Type            string `json:"type"`
	Notes           string `json:"notes"`
}

// updateAppointmentRequest is the explicit allow-list of mutable fields.
// Anything else in the body is dropped without error. CancelReason rides on
// cancellation requests only and is never persisted.
type updateAppointmentRequest struct {
	Status          *string `json:"status"`
	Notes           *string `json:"notes"`
	AppointmentDate *string `json:"appointment_date"`
	CancelReason    string  `json:"cancel_reason"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	f := appointment.Filter{
		UserID:       strings.TrimSpace(r.URL.Query().Get("user_id")),
		SpecialistID: strings.TrimSpace(r.URL.Query().Get("specialist_id")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		f.Status = status
	}

	appts, err := h.svc.GetAll(r.Context(), f)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toResponse(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("get appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.SpecialistID = strings.TrimSpace(req.SpecialistID)
	if req.UserID == "" || req.SpecialistID == "" {
		writeError(w, http.StatusBadRequest, "user_id and specialist_id required")
		return
	}
	svcType, ok := model.ParseServiceType(strings.TrimSpace(req.Type))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}
	date, err := time.Parse(time.RFC3339, req.AppointmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment_date")
		return
	}

	appt := &model.Appointment{
		UserID:          req.UserID,
		SpecialistID:    req.SpecialistID,
		AppointmentDate: date,
		Type:            svcType,
		Notes:           strings.TrimSpace(req.Notes),
	}
	if _, err := h.svc.Create(r.Context(), appt); err != nil {
		h.logger.Error("create appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(*appt))
}

// Update applies the allow-listed patch, then re-reads the full record and
// dispatches the confirmation/cancellation email when the new status calls
// for one. A failed dispatch is logged and recorded but never turns the
// already-committed update into an error response.
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var patch model.Patch
	if req.Status != nil {
		status, ok := model.ParseStatus(strings.TrimSpace(*req.Status))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		patch.Status = &status
	}
	if req.Notes != nil {
		patch.Notes = req.Notes
	}
	if req.AppointmentDate != nil {
		date, err := time.Parse(time.RFC3339, *req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid appointment_date")
			return
		}
		patch.AppointmentDate = &date
	}

	ctx := r.Context()
	updated, err := h.svc.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, appointment.ErrNotFound):
			writeError(w, http.StatusNotFound, "appointment not found")
		case errors.Is(err, appointment.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("update appointment failed", "err", err, "appointment_id", id)
			writeError(w, http.StatusInternalServerError, "failed to update appointment")
		}
		return
	}

	if patch.Status != nil {
		h.notifyStatusChange(r, id, *patch.Status, req.CancelReason)
	}

	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (h *AppointmentHandler) notifyStatusChange(r *http.Request, id string, status model.Status, cancelReason string) {
	if status != model.StatusConfirmed && status != model.StatusCanceled {
		return
	}

	// Second round-trip on purpose: the update result has no client email or
	// specialist name, both of which the email body needs.
	detail, err := h.svc.GetDetail(r.Context(), id)
	if err != nil {
		h.logger.Error("post-update detail fetch failed; notification skipped", "err", err, "appointment_id", id)
		return
	}
	if detail.ClientEmail == "" {
		h.logger.Info("client has no email address; notification skipped", "appointment_id", id)
		return
	}

	switch status {
	case model.StatusConfirmed:
		err = h.notifier.AppointmentConfirmed(r.Context(), detail)
	case model.StatusCanceled:
		err = h.notifier.AppointmentCanceled(r.Context(), detail, strings.TrimSpace(cancelReason))
	}
	if err != nil {
		h.logger.Error("notification dispatch failed", "err", err, "appointment_id", id, "status", status)
	}
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("delete appointment failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete appointment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "appointment deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
