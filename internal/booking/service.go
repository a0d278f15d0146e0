package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/internal/storage"
)

// Catalog supplies read-only service and add-on lookups.
type Catalog interface {
	GetService(ctx context.Context, id string) (model.Service, bool, error)
	GetAddOns(ctx context.Context, ids []string) ([]model.AddOn, error)
}

// AppointmentStore persists appointments. Write methods accept outbox events
// so persistence and notification recording share one transaction.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, bool, error)
	CreateAppointment(ctx context.Context, appt model.Appointment, lines []model.AppointmentAddOn, events []outbox.Event) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, patch model.AppointmentPatch, events []outbox.Event) (model.Appointment, error)
	ListAppointments(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error)
}

// SlotFinder re-runs availability for the admission check at booking time.
type SlotFinder interface {
	ListSlots(ctx context.Context, q availability.Query) ([]model.Slot, error)
}

// Auditor records who did what. Audit failures never fail the operation.
type Auditor interface {
	Record(ctx context.Context, action, actorID, entity, entityID string) error
}

type Service struct {
	catalog Catalog
	store   AppointmentStore
	slots   SlotFinder
	audit   Auditor
	logger  *slog.Logger

	now             func() time.Time
	reminderOffsets []time.Duration
}

func NewService(catalog Catalog, store AppointmentStore, slots SlotFinder, audit Auditor, logger *slog.Logger, reminderOffsets []time.Duration) *Service {
	return &Service{
		catalog:         catalog,
		store:           store,
		slots:           slots,
		audit:           audit,
		logger:          logger,
		now:             time.Now,
		reminderOffsets: reminderOffsets,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	StaffID         string
	ClientID        string
	PetID           string
	ServiceID       string
	StartsAt        time.Time
	DurationMinutes int // 0 = use the service's nominal duration
	AddOnIDs        []string
	DiscountCents   int64
	TaxCents        int64
	Status          model.AppointmentStatus // empty = booked
	Notes           string
	CreatedBy       string
}

// CreateAppointment books a slot: re-checks availability, snapshots catalog
// prices onto the row, and writes the appointment, its add-on lines, and the
// booked/reminder events in one transaction. A store-level overlap conflict
// (the race-window backstop) is reported as ErrSlotUnavailable, same as the
// fast-path check.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (model.Appointment, error) {
	if err := in.validate(); err != nil {
		return model.Appointment{}, err
	}

	svc, ok, err := s.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, ErrServiceNotFound
	}

	duration := time.Duration(in.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = time.Duration(svc.DurationMinutes) * time.Minute
	}
	if duration <= 0 {
		duration = availability.DefaultDuration
	}
	end := in.StartsAt.Add(duration)

	if err := s.requireSlot(ctx, svc, in.StaffID, in.StartsAt, end, duration); err != nil {
		return model.Appointment{}, err
	}

	lines, addOnTotal, err := s.snapshotAddOns(ctx, in.AddOnIDs)
	if err != nil {
		return model.Appointment{}, err
	}

	status := in.Status
	if status == "" {
		status = model.StatusBooked
	}

	// The id is assigned here, not in the store, so the outbox events
	// written in the same transaction carry the appointment they announce.
	appt := model.Appointment{
		ID:                uuid.NewString(),
		StaffID:           in.StaffID,
		ClientID:          in.ClientID,
		PetID:             in.PetID,
		ServiceID:         in.ServiceID,
		StartsAt:          in.StartsAt,
		EndsAt:            end,
		PriceServiceCents: svc.BasePriceCents,
		PriceAddOnsCents:  addOnTotal,
		DiscountCents:     in.DiscountCents,
		TaxCents:          in.TaxCents,
		Status:            status,
		Notes:             in.Notes,
		CreatedBy:         in.CreatedBy,
	}

	created, err := s.store.CreateAppointment(ctx, appt, lines, s.bookedEvents(appt))
	if err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}

	s.recordAudit(ctx, "appointment_created", created.CreatedBy, "appointment", created.ID)
	return created, nil
}

func (in CreateInput) validate() error {
	if in.StaffID == "" || in.ClientID == "" || in.ServiceID == "" {
		return fmt.Errorf("%w: staff, client, and service are required", ErrInvalidInput)
	}
	if in.StartsAt.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}
	seen := make(map[string]struct{}, len(in.AddOnIDs))
	for _, id := range in.AddOnIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate add-on id %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// requireSlot is the admission-control gate: the requested {staff, start}
// must come back from the generator for a narrow window bracketing the
// booking. It is a check-then-act read; the store's exclusion constraint
// backstops the race at write time.
func (s *Service) requireSlot(ctx context.Context, svc model.Service, staffID string, start, end time.Time, duration time.Duration) error {
	tail := time.Duration(svc.BufferPostMinutes) * time.Minute
	if tail < time.Hour {
		tail = time.Hour
	}
	slots, err := s.slots.ListSlots(ctx, availability.Query{
		ServiceID: svc.ID,
		StaffID:   staffID,
		From:      start.Add(-duration),
		To:        end.Add(tail),
	})
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.StaffID == staffID && slot.Start.Equal(start) {
			return nil
		}
	}
	return ErrSlotUnavailable
}

func (s *Service) snapshotAddOns(ctx context.Context, ids []string) ([]model.AppointmentAddOn, int64, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}
	addOns, err := s.catalog.GetAddOns(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]model.AddOn, len(addOns))
	for _, a := range addOns {
		byID[a.ID] = a
	}

	var missing []string
	var lines []model.AppointmentAddOn
	var total int64
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		lines = append(lines, model.AppointmentAddOn{AddOnID: a.ID, PriceCents: a.PriceCents})
		total += a.PriceCents
	}
	if len(missing) > 0 {
		return nil, 0, &UnknownAddOnsError{IDs: missing}
	}
	return lines, total, nil
}

func (s *Service) bookedEvents(appt model.Appointment) []outbox.Event {
	now := s.now()
	events := []outbox.Event{{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload: mustJSON(map[string]any{
			"staff_id":   appt.StaffID,
			"client_id":  appt.ClientID,
			"service_id": appt.ServiceID,
			"starts_at":  appt.StartsAt,
			"ends_at":    appt.EndsAt,
		}),
	}}
	for _, offset := range s.reminderOffsets {
		remindAt := appt.StartsAt.Add(-offset)
		if !remindAt.After(now) {
			continue
		}
		events = append(events, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventReminderRequested,
			Payload: mustJSON(map[string]any{
				"client_id": appt.ClientID,
				"remind_at": remindAt,
				"starts_at": appt.StartsAt,
			}),
		})
	}
	return events
}

type UpdateInput struct {
	Status   *model.AppointmentStatus
	Discount *int64
	Tax      *int64
	Notes    *string
	ActorID  string
}

// UpdateAppointment writes only the supplied fields. Time and staff never
// move through this path; rescheduling has its own guarded flow.
func (s *Service) UpdateAppointment(ctx context.Context, id string, in UpdateInput) (model.Appointment, error) {
	if in.Status == nil && in.Discount == nil && in.Tax == nil && in.Notes == nil {
		return model.Appointment{}, fmt.Errorf("%w: at least one field must be supplied", ErrInvalidInput)
	}
	if in.Status != nil && !in.Status.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
	}

	patch := model.AppointmentPatch{Status: in.Status, Discount: in.Discount, Tax: in.Tax, Notes: in.Notes}
	updated, err := s.store.UpdateAppointment(ctx, id, patch, nil)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}

	s.recordAudit(ctx, "appointment_updated", in.ActorID, "appointment", updated.ID)
	return updated, nil
}

// CancelAppointment sets the status to canceled and, when a reason is given,
// appends it to the notes without discarding what was already there.
func (s *Service) CancelAppointment(ctx context.Context, id, reason, actorID string) (model.Appointment, error) {
	appt, ok, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}

	status := model.StatusCanceled
	patch := model.AppointmentPatch{Status: &status}
	if reason != "" {
		notes := appt.Notes
		if notes != "" {
			notes += "\n"
		}
		notes += "Cancellation reason: " + reason
		patch.Notes = &notes
	}

	events := []outbox.Event{{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCanceled,
		Payload: mustJSON(map[string]any{
			"client_id": appt.ClientID,
			"staff_id":  appt.StaffID,
			"starts_at": appt.StartsAt,
			"reason":    reason,
		}),
	}}

	updated, err := s.store.UpdateAppointment(ctx, id, patch, events)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}

	s.recordAudit(ctx, "appointment_canceled", actorID, "appointment", updated.ID)
	return updated, nil
}

// ListAppointments is the staff-calendar read.
func (s *Service) ListAppointments(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: from must precede to", ErrInvalidInput)
	}
	return s.store.ListAppointments(ctx, staffID, from, to)
}

// CommissionBase is the figure payroll compounds staff commission on:
// service price plus add-ons minus discount, tax excluded.
func CommissionBase(priceServiceCents, priceAddOnsCents, discountCents int64) int64 {
	return priceServiceCents + priceAddOnsCents - discountCents
}

func (s *Service) recordAudit(ctx context.Context, action, actorID, entity, entityID string) {
	if err := s.audit.Record(ctx, action, actorID, entity, entityID); err != nil {
		s.logger.Warn("audit record failed", "action", action, "entity_id", entityID, "err", err)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
