package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pawprint-labs/groomsched/internal/reschedule"
	"github.com/pawprint-labs/groomsched/internal/timeutil"
)

type RescheduleHandler struct {
	svc    *reschedule.Service
	logger *slog.Logger
}

func NewRescheduleHandler(svc *reschedule.Service, logger *slog.Logger) *RescheduleHandler {
	return &RescheduleHandler{svc: svc, logger: logger}
}

type createLinkRequest struct {
	AppointmentID string `json:"appointment_id"`
	TTLHours      int    `json:"ttl_hours"`
	CreatedBy     string `json:"created_by"`
}

type createLinkResponse struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

func (h *RescheduleHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	link, err := h.svc.CreateLink(r.Context(), reschedule.CreateLinkInput{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		TTLHours:      req.TTLHours,
		CreatedBy:     strings.TrimSpace(req.CreatedBy),
	})
	if err != nil {
		h.writeRescheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createLinkResponse{
		Token:     link.Token,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type applyRequest struct {
	Token     string `json:"token"`
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	StartsAt  string `json:"starts_at"`
}

func (h *RescheduleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	startsAt, err := timeutil.ParseRFC3339(strings.TrimSpace(req.StartsAt))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid starts_at")
		return
	}

	updated, err := h.svc.ApplyReschedule(r.Context(), reschedule.ApplyInput{
		Token:     strings.TrimSpace(req.Token),
		ServiceID: strings.TrimSpace(req.ServiceID),
		StaffID:   strings.TrimSpace(req.StaffID),
		StartsAt:  startsAt,
	})
	if err != nil {
		h.writeRescheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
}

func (h *RescheduleHandler) writeRescheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reschedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reschedule.ErrLinkNotFound), errors.Is(err, reschedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reschedule.ErrLinkUsed), errors.Is(err, reschedule.ErrLinkExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, reschedule.ErrServiceMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, reschedule.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("reschedule operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
