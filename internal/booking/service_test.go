package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
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

	created       *model.Appointment
	createdLines  []model.AppointmentAddOn
	createdEvents []outbox.Event
	createErr     error

	updatedPatch  model.AppointmentPatch
	updatedEvents []outbox.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{appts: make(map[string]model.Appointment)}
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (model.Appointment, bool, error) {
	a, ok := f.appts[id]
	return a, ok, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, appt model.Appointment, lines []model.AppointmentAddOn, events []outbox.Event) (model.Appointment, error) {
	if f.createErr != nil {
		return model.Appointment{}, f.createErr
	}
	if appt.ID == "" {
		appt.ID = "appt-1"
	}
	f.created = &appt
	f.createdLines = lines
	f.createdEvents = events
	f.appts[appt.ID] = appt
	return appt, nil
}

func (f *fakeStore) UpdateAppointment(_ context.Context, id string, patch model.AppointmentPatch, events []outbox.Event) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Discount != nil {
		a.DiscountCents = *patch.Discount
	}
	if patch.Tax != nil {
		a.TaxCents = *patch.Tax
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	f.updatedPatch = patch
	f.updatedEvents = events
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
	slots   []model.Slot
	queries []availability.Query
}

func (f *fakeSlots) ListSlots(_ context.Context, q availability.Query) ([]model.Slot, error) {
	f.queries = append(f.queries, q)
	return f.slots, nil
}

type fakeAudit struct {
	actions []string
	err     error
}

func (f *fakeAudit) Record(_ context.Context, action, _, _, _ string) error {
	f.actions = append(f.actions, action)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(catalog *fakeCatalog, store *fakeStore, slots *fakeSlots, audit *fakeAudit) *Service {
	svc := NewService(catalog, store, slots, audit, testLogger(), []time.Duration{24 * time.Hour, time.Hour})
	return svc.WithClock(func() time.Time { return testStart.Add(-48 * time.Hour) })
}

func groomingCatalog() *fakeCatalog {
	return &fakeCatalog{
		services: map[string]model.Service{
			"svc-1": {ID: "svc-1", Name: "Full Groom", BasePriceCents: 6000, DurationMinutes: 60, BufferPostMinutes: 15},
		},
		addOns: map[string]model.AddOn{
			"addon-1": {ID: "addon-1", Name: "Nail Trim", PriceCents: 1200},
			"addon-2": {ID: "addon-2", Name: "Teeth Brushing", PriceCents: 1800},
		},
	}
}

func TestCreateAppointment_SnapshotsPricing(t *testing.T) {
	store := newFakeStore()
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	audit := &fakeAudit{}
	svc := newTestService(groomingCatalog(), store, slots, audit)

	created, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
		AddOnIDs:  []string{"addon-1", "addon-2"},
		CreatedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	if created.PriceServiceCents != 6000 {
		t.Fatalf("expected service price 6000, got %d", created.PriceServiceCents)
	}
	if created.PriceAddOnsCents != 3000 {
		t.Fatalf("expected add-on total 3000, got %d", created.PriceAddOnsCents)
	}
	if !created.EndsAt.Equal(testStart.Add(time.Hour)) {
		t.Fatalf("expected one-hour appointment, got end %s", created.EndsAt.Format(time.RFC3339))
	}
	if created.Status != model.StatusBooked {
		t.Fatalf("expected default status booked, got %s", created.Status)
	}
	if len(store.createdLines) != 2 {
		t.Fatalf("expected 2 add-on lines, got %d", len(store.createdLines))
	}
	if store.createdLines[0].PriceCents != 1200 || store.createdLines[1].PriceCents != 1800 {
		t.Fatalf("line prices not snapshotted: %+v", store.createdLines)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "appointment_created" {
		t.Fatalf("expected appointment_created audit entry, got %v", audit.actions)
	}
}

func TestCreateAppointment_RecordsEvents(t *testing.T) {
	store := newFakeStore()
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	svc := newTestService(groomingCatalog(), store, slots, &fakeAudit{})

	created, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
	})
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected appointment id to be assigned")
	}

	// Clock is 48h before start, so both the 24h and 1h reminder offsets
	// are still ahead: one booked event plus two reminders.
	if len(store.createdEvents) != 3 {
		t.Fatalf("expected 3 outbox events, got %d", len(store.createdEvents))
	}
	if store.createdEvents[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("expected booked event first, got %s", store.createdEvents[0].EventType)
	}
	for _, evt := range store.createdEvents[1:] {
		if evt.EventType != outbox.EventReminderRequested {
			t.Fatalf("expected reminder event, got %s", evt.EventType)
		}
	}
	// Every event must name the appointment it announces.
	for i, evt := range store.createdEvents {
		if evt.AggregateID != created.ID {
			t.Fatalf("event %d aggregate id = %q, want %q", i, evt.AggregateID, created.ID)
		}
	}
}

func TestCreateAppointment_SkipsPastReminders(t *testing.T) {
	store := newFakeStore()
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	svc := NewService(groomingCatalog(), store, slots, &fakeAudit{}, testLogger(), []time.Duration{24 * time.Hour, time.Hour}).
		WithClock(func() time.Time { return testStart.Add(-30 * time.Minute) })

	if _, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
	}); err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	// Both reminder instants are already behind the clock.
	if len(store.createdEvents) != 1 {
		t.Fatalf("expected only the booked event, got %d", len(store.createdEvents))
	}
}

func TestCreateAppointment_UnknownAddOnsNamed(t *testing.T) {
	store := newFakeStore()
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	svc := newTestService(groomingCatalog(), store, slots, &fakeAudit{})

	_, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
		AddOnIDs:  []string{"addon-1", "addon-missing"},
	})
	var unknown *UnknownAddOnsError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownAddOnsError, got %v", err)
	}
	if len(unknown.IDs) != 1 || unknown.IDs[0] != "addon-missing" {
		t.Fatalf("expected the missing id named, got %v", unknown.IDs)
	}
	if !strings.Contains(unknown.Error(), "addon-missing") {
		t.Fatalf("error message must name the id: %s", unknown.Error())
	}
}

func TestCreateAppointment_DuplicateAddOnIDs(t *testing.T) {
	svc := newTestService(groomingCatalog(), newFakeStore(), &fakeSlots{}, &fakeAudit{})

	_, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
		AddOnIDs:  []string{"addon-1", "addon-1"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateAppointment_SlotGone(t *testing.T) {
	// Generator returns a different start; the exact requested pair is absent.
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart.Add(15 * time.Minute), End: testStart.Add(75 * time.Minute)}}}
	svc := newTestService(groomingCatalog(), newFakeStore(), slots, &fakeAudit{})

	_, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCreateAppointment_StoreConflictIsSlotUnavailable(t *testing.T) {
	store := newFakeStore()
	store.createErr = &pgconn.PgError{Code: "23P01"}
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	svc := newTestService(groomingCatalog(), store, slots, &fakeAudit{})

	_, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected exclusion-constraint violation to read as ErrSlotUnavailable, got %v", err)
	}
}

func TestCreateAppointment_ServiceNotFound(t *testing.T) {
	svc := newTestService(groomingCatalog(), newFakeStore(), &fakeSlots{}, &fakeAudit{})

	_, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "missing",
		StartsAt:  testStart,
	})
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestUpdateAppointment(t *testing.T) {
	store := newFakeStore()
	store.appts["appt-1"] = model.Appointment{ID: "appt-1", Status: model.StatusBooked}
	audit := &fakeAudit{}
	svc := newTestService(groomingCatalog(), store, &fakeSlots{}, audit)
	ctx := context.Background()

	if _, err := svc.UpdateAppointment(ctx, "appt-1", UpdateInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty patch must be invalid, got %v", err)
	}

	discount := int64(500)
	updated, err := svc.UpdateAppointment(ctx, "appt-1", UpdateInput{Discount: &discount, ActorID: "user-1"})
	if err != nil {
		t.Fatalf("UpdateAppointment failed: %v", err)
	}
	if updated.DiscountCents != 500 {
		t.Fatalf("expected discount 500, got %d", updated.DiscountCents)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "appointment_updated" {
		t.Fatalf("expected appointment_updated audit entry, got %v", audit.actions)
	}

	if _, err := svc.UpdateAppointment(ctx, "missing", UpdateInput{Discount: &discount}); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	bad := model.AppointmentStatus("teleported")
	if _, err := svc.UpdateAppointment(ctx, "appt-1", UpdateInput{Status: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown status must be invalid, got %v", err)
	}
}

func TestCancelAppointment_AppendsReason(t *testing.T) {
	store := newFakeStore()
	store.appts["appt-1"] = model.Appointment{ID: "appt-1", Status: model.StatusBooked, Notes: "prefers morning"}
	audit := &fakeAudit{}
	svc := newTestService(groomingCatalog(), store, &fakeSlots{}, audit)

	updated, err := svc.CancelAppointment(context.Background(), "appt-1", "pet unwell", "user-1")
	if err != nil {
		t.Fatalf("CancelAppointment failed: %v", err)
	}
	if updated.Status != model.StatusCanceled {
		t.Fatalf("expected canceled, got %s", updated.Status)
	}
	want := "prefers morning\nCancellation reason: pet unwell"
	if updated.Notes != want {
		t.Fatalf("expected notes %q, got %q", want, updated.Notes)
	}
	if len(store.updatedEvents) != 1 || store.updatedEvents[0].EventType != outbox.EventAppointmentCanceled {
		t.Fatalf("expected canceled event, got %v", store.updatedEvents)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "appointment_canceled" {
		t.Fatalf("expected appointment_canceled audit entry, got %v", audit.actions)
	}
}

func TestCancelAppointment_NoReasonLeavesNotes(t *testing.T) {
	store := newFakeStore()
	store.appts["appt-1"] = model.Appointment{ID: "appt-1", Status: model.StatusBooked, Notes: "prefers morning"}
	svc := newTestService(groomingCatalog(), store, &fakeSlots{}, &fakeAudit{})

	updated, err := svc.CancelAppointment(context.Background(), "appt-1", "", "user-1")
	if err != nil {
		t.Fatalf("CancelAppointment failed: %v", err)
	}
	if updated.Notes != "prefers morning" {
		t.Fatalf("notes must be untouched without a reason, got %q", updated.Notes)
	}
	if store.updatedPatch.Notes != nil {
		t.Fatal("patch must not carry notes without a reason")
	}
}

func TestCommissionBase(t *testing.T) {
	if got := CommissionBase(6000, 3000, 1000); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
	// Tax never enters the figure; only a discount reduces it.
	if got := CommissionBase(6000, 0, 0); got != 6000 {
		t.Fatalf("expected 6000, got %d", got)
	}
}

func TestCreateAppointment_AuditFailureDoesNotFail(t *testing.T) {
	store := newFakeStore()
	slots := &fakeSlots{slots: []model.Slot{{StaffID: "staff-1", Start: testStart, End: testStart.Add(time.Hour)}}}
	audit := &fakeAudit{err: errors.New("audit store down")}
	svc := newTestService(groomingCatalog(), store, slots, audit)

	if _, err := svc.CreateAppointment(context.Background(), CreateInput{
		StaffID:   "staff-1",
		ClientID:  "client-1",
		ServiceID: "svc-1",
		StartsAt:  testStart,
	}); err != nil {
		t.Fatalf("audit failure must not fail the booking: %v", err)
	}
}
