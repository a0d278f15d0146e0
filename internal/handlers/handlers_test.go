package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/booking"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/internal/reschedule"
)

type fakeCatalog struct {
	services map[string]model.Service
	addOns   map[string]model.AddOn
}

func (f *fakeCatalog) GetService(_ context.Context, id string) (model.Service, bool, error) {
	svc, ok := f.services[id]
	return svc, ok, nil
}

func (f *fakeCatalog) GetAddOns(_ context.Context, ids []string) ([]model.AddOn, error) {
	var out []model.AddOn
	for _, id := range ids {
		if a, ok := f.addOns[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeStore struct {
	appts map[string]model.Appointment
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (model.Appointment, bool, error) {
	a, ok := f.appts[id]
	return a, ok, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, appt model.Appointment, _ []model.AppointmentAddOn, _ []outbox.Event) (model.Appointment, error) {
	appt.ID = "appt-1"
	f.appts[appt.ID] = appt
	return appt, nil
}

func (f *fakeStore) UpdateAppointment(_ context.Context, id string, patch model.AppointmentPatch, _ []outbox.Event) (model.Appointment, error) {
	a := f.appts[id]
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	f.appts[id] = a
	return a, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, _ string, _, _ time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		out = append(out, a)
	}
	return out, nil
}

type fakeSlots struct {
	slots []model.Slot
}

func (f *fakeSlots) ListSlots(_ context.Context, _ availability.Query) ([]model.Slot, error) {
	return f.slots, nil
}

type fakeAudit struct{}

func (fakeAudit) Record(_ context.Context, _, _, _, _ string) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var handlerStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newBookingHandler(slots *fakeSlots) *AppointmentHandler {
	catalog := &fakeCatalog{
		services: map[string]model.Service{"svc-1": {ID: "svc-1", BasePriceCents: 6000, DurationMinutes: 60}},
	}
	store := &fakeStore{appts: make(map[string]model.Appointment)}
	svc := booking.NewService(catalog, store, slots, fakeAudit{}, testLogger(), nil).
		WithClock(func() time.Time { return handlerStart.Add(-48 * time.Hour) })
	return NewAppointmentHandler(svc, slots, testLogger())
}

func TestBook_CreatedAndConflict(t *testing.T) {
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: handlerStart, End: handlerStart.Add(time.Hour)}}}
	h := newBookingHandler(slots)

	body := `{"staff_id":"staff-1","client_id":"client-1","service_id":"svc-1","starts_at":"2026-03-02T09:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp["price_service"].(float64) != 6000 {
		t.Fatalf("expected snapshotted price in response, got %v", resp["price_service"])
	}

	// Same request with no matching slot must map to 409.
	slots.slots = nil
	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var errResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil || errResp["error"] == "" {
		t.Fatalf("expected json error body, got %s", rec.Body.String())
	}
}

func TestBook_BadRequests(t *testing.T) {
	h := newBookingHandler(&fakeSlots{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil)
	rec = httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	body := `{"staff_id":"staff-1","client_id":"client-1","service_id":"missing","starts_at":"2026-03-02T09:00:00Z"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown service, got %d", rec.Code)
	}
}

func newRescheduleHandler(links reschedule.LinkStore, slots *fakeSlots) *RescheduleHandler {
	appts := &fakeStore{appts: map[string]model.Appointment{
		"appt-1": {ID: "appt-1", StaffID: "staff-1", ServiceID: "svc-1", StartsAt: handlerStart, EndsAt: handlerStart.Add(time.Hour), Status: model.StatusBooked},
	}}
	catalog := &fakeCatalog{services: map[string]model.Service{"svc-1": {ID: "svc-1", DurationMinutes: 60}}}
	svc := reschedule.NewService(links, appts, catalog, slots, fakeAudit{}, testLogger(), "https://book.example.com").
		WithClock(func() time.Time { return handlerStart.Add(-24 * time.Hour) })
	return NewRescheduleHandler(svc, testLogger())
}

type fakeLinkStore struct {
	links map[string]model.RescheduleLink
}

func (f *fakeLinkStore) CreateLink(_ context.Context, link model.RescheduleLink) (model.RescheduleLink, error) {
	f.links[link.Token] = link
	return link, nil
}

func (f *fakeLinkStore) GetLinkByToken(_ context.Context, token string) (model.RescheduleLink, bool, error) {
	l, ok := f.links[token]
	return l, ok, nil
}

func (f *fakeLinkStore) ApplyReschedule(_ context.Context, _, appointmentID, staffID string, startsAt, endsAt, _ time.Time, _ []outbox.Event) (model.Appointment, error) {
	return model.Appointment{ID: appointmentID, StaffID: staffID, StartsAt: startsAt, EndsAt: endsAt, Status: model.StatusBooked}, nil
}

func TestApply_GoneStatuses(t *testing.T) {
	used := handlerStart.Add(-48 * time.Hour)
	links := &fakeLinkStore{links: map[string]model.RescheduleLink{
		"tok-used": {ID: "link-1", AppointmentID: "appt-1", Token: "tok-used", UsedAt: &used},
	}}
	h := newRescheduleHandler(links, &fakeSlots{})

	body := `{"token":"tok-used","service_id":"svc-1","starts_at":"2026-03-02T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for a used link, got %d", rec.Code)
	}

	body = `{"token":"tok-missing","service_id":"svc-1","starts_at":"2026-03-02T14:00:00Z"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/reschedule", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.Apply(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown token, got %d", rec.Code)
	}
}

func TestApply_ServiceMismatchIs422(t *testing.T) {
	links := &fakeLinkStore{links: map[string]model.RescheduleLink{
		"tok-1": {ID: "link-1", AppointmentID: "appt-1", Token: "tok-1"},
	}}
	h := newRescheduleHandler(links, &fakeSlots{})

	body := `{"token":"tok-1","service_id":"svc-other","starts_at":"2026-03-02T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for service mismatch, got %d", rec.Code)
	}
}

func TestApply_Success(t *testing.T) {
	newStart := handlerStart.Add(5 * time.Hour)
	links := &fakeLinkStore{links: map[string]model.RescheduleLink{
		"tok-1": {ID: "link-1", AppointmentID: "appt-1", Token: "tok-1"},
	}}
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: newStart, End: newStart.Add(time.Hour)}}}
	h := newRescheduleHandler(links, slots)

	body := `{"token":"tok-1","service_id":"svc-1","starts_at":"2026-03-02T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp["starts_at"] != "2026-03-02T14:00:00Z" {
		t.Fatalf("expected moved start in response, got %v", resp["starts_at"])
	}
}

func TestCreateLinkEndpoint(t *testing.T) {
	links := &fakeLinkStore{links: make(map[string]model.RescheduleLink)}
	h := newRescheduleHandler(links, &fakeSlots{})

	body := `{"appointment_id":"appt-1","created_by":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reschedule-links", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateLink(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createLinkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.Token == "" || !strings.HasPrefix(resp.URL, "https://book.example.com/reschedule/") {
		t.Fatalf("unexpected link response %+v", resp)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: handlerStart, End: handlerStart.Add(time.Hour)}}}
	h := newBookingHandler(slots)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?service_id=svc-1&from=2026-03-02T09:00:00Z&to=2026-03-02T17:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if len(items) != 1 || items[0].StaffID != "staff-1" || items[0].Start != "2026-03-02T09:00:00Z" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestSlotsEndpoint_Validation(t *testing.T) {
	h := newBookingHandler(&fakeSlots{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?from=2026-03-02T09:00:00Z&to=2026-03-02T17:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without service_id, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?service_id=svc-1&from=not-a-time&to=2026-03-02T17:00:00Z", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad timestamp, got %d", rec.Code)
	}
}
