package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/booking"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/timeutil"
)

// SlotFinder is the read surface the public slots endpoint needs.
type SlotFinder interface {
	ListSlots(ctx context.Context, q availability.Query) ([]model.Slot, error)
}

type AppointmentHandler struct {
	booking *booking.Service
	slots   SlotFinder
	logger  *slog.Logger
}

func NewAppointmentHandler(bookingSvc *booking.Service, slots SlotFinder, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{booking: bookingSvc, slots: slots, logger: logger}
}

type slotItem struct {
	StaffID string `json:"staff_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type appointmentResponse struct {
	ID           string `json:"id"`
	StaffID      string `json:"staff_id"`
	ClientID     string `json:"client_id"`
	PetID        string `json:"pet_id,omitempty"`
	ServiceID    string `json:"service_id"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	PriceService int64  `json:"price_service"`
	PriceAddOns  int64  `json:"price_addons"`
	Discount     int64  `json:"discount"`
	Tax          int64  `json:"tax"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:           a.ID,
		StaffID:      a.StaffID,
		ClientID:     a.ClientID,
		PetID:        a.PetID,
		ServiceID:    a.ServiceID,
		StartsAt:     a.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:       a.EndsAt.UTC().Format(time.RFC3339),
		PriceService: a.PriceServiceCents,
		PriceAddOns:  a.PriceAddOnsCents,
		Discount:     a.DiscountCents,
		Tax:          a.TaxCents,
		Status:       string(a.Status),
		Notes:        a.Notes,
	}
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "service_id required")
		return
	}
	from, err := timeutil.ParseRFC3339(strings.TrimSpace(q.Get("from")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := timeutil.ParseRFC3339(strings.TrimSpace(q.Get("to")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	slots, err := h.slots.ListSlots(r.Context(), availability.Query{
		ServiceID: serviceID,
		StaffID:   strings.TrimSpace(q.Get("staff_id")),
		From:      from,
		To:        to,
	})
	if err != nil {
		h.logger.Error("slot listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StaffID: s.StaffID,
			Start:   s.Start.UTC().Format(time.RFC3339),
			End:     s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type bookRequest struct {
	StaffID         string   `json:"staff_id"`
	ClientID        string   `json:"client_id"`
	PetID           string   `json:"pet_id"`
	ServiceID       string   `json:"service_id"`
	StartsAt        string   `json:"starts_at"`
	DurationMinutes int      `json:"duration_minutes"`
	AddOnIDs        []string `json:"add_on_ids"`
	Discount        int64    `json:"discount"`
	Tax             int64    `json:"tax"`
	Status          string   `json:"status"`
	Notes           string   `json:"notes"`
	CreatedBy       string   `json:"created_by"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	startsAt, err := timeutil.ParseRFC3339(strings.TrimSpace(req.StartsAt))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid starts_at")
		return
	}

	created, err := h.booking.CreateAppointment(r.Context(), booking.CreateInput{
		StaffID:         strings.TrimSpace(req.StaffID),
		ClientID:        strings.TrimSpace(req.ClientID),
		PetID:           strings.TrimSpace(req.PetID),
		ServiceID:       strings.TrimSpace(req.ServiceID),
		StartsAt:        startsAt,
		DurationMinutes: req.DurationMinutes,
		AddOnIDs:        req.AddOnIDs,
		DiscountCents:   req.Discount,
		TaxCents:        req.Tax,
		Status:          model.AppointmentStatus(strings.TrimSpace(req.Status)),
		Notes:           req.Notes,
		CreatedBy:       strings.TrimSpace(req.CreatedBy),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(created))
}

type updateRequest struct {
	ID       string  `json:"id"`
	Status   *string `json:"status"`
	Discount *int64  `json:"discount"`
	Tax      *int64  `json:"tax"`
	Notes    *string `json:"notes"`
	ActorID  string  `json:"actor_id"`
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	in := booking.UpdateInput{Discount: req.Discount, Tax: req.Tax, Notes: req.Notes, ActorID: strings.TrimSpace(req.ActorID)}
	if req.Status != nil {
		status := model.AppointmentStatus(*req.Status)
		in.Status = &status
	}

	updated, err := h.booking.UpdateAppointment(r.Context(), req.ID, in)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
}

type cancelRequest struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	updated, err := h.booking.CancelAppointment(r.Context(), req.ID, strings.TrimSpace(req.Reason), strings.TrimSpace(req.ActorID))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	from, err := timeutil.ParseRFC3339(strings.TrimSpace(q.Get("from")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := timeutil.ParseRFC3339(strings.TrimSpace(q.Get("to")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	appts, err := h.booking.ListAppointments(r.Context(), strings.TrimSpace(q.Get("staff_id")), from, to)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) writeBookingError(w http.ResponseWriter, err error) {
	var unknown *booking.UnknownAddOnsError
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unknown):
		writeError(w, http.StatusBadRequest, unknown.Error())
	case errors.Is(err, booking.ErrServiceNotFound), errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("booking operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
