package reschedule

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawprint-labs/groomsched/internal/availability"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/internal/storage"
)

const (
	DefaultTTL = 48 * time.Hour

	// tokenBytes of entropy, base64url-encoded. 24 raw bytes keeps the
	// token comfortably past brute-force reach while staying short enough
	// for SMS links.
	tokenBytes = 24

	// How far around the requested start the availability re-check looks.
	revalidateWindow = 3 * time.Hour

	tokenRetries = 3
)

// LinkStore persists reschedule links. ApplyReschedule must consume the link
// and move the appointment atomically; a link already consumed surfaces as a
// not-found error from the guarded update.
type LinkStore interface {
	CreateLink(ctx context.Context, link model.RescheduleLink) (model.RescheduleLink, error)
	GetLinkByToken(ctx context.Context, token string) (model.RescheduleLink, bool, error)
	ApplyReschedule(ctx context.Context, linkID, appointmentID, staffID string, startsAt, endsAt, usedAt time.Time, events []outbox.Event) (model.Appointment, error)
}

type AppointmentReader interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, bool, error)
}

type ServiceReader interface {
	GetService(ctx context.Context, id string) (model.Service, bool, error)
}

type SlotFinder interface {
	ListSlots(ctx context.Context, q availability.Query) ([]model.Slot, error)
}

type Auditor interface {
	Record(ctx context.Context, action, actorID, entity, entityID string) error
}

type Service struct {
	links        LinkStore
	appointments AppointmentReader
	catalog      ServiceReader
	slots        SlotFinder
	audit        Auditor
	logger       *slog.Logger

	baseURL string
	now     func() time.Time
}

func NewService(links LinkStore, appointments AppointmentReader, catalog ServiceReader, slots SlotFinder, audit Auditor, logger *slog.Logger, baseURL string) *Service {
	return &Service{
		links:        links,
		appointments: appointments,
		catalog:      catalog,
		slots:        slots,
		audit:        audit,
		logger:       logger,
		baseURL:      baseURL,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateLinkInput struct {
	AppointmentID string
	TTLHours      int // 0 = default 48h
	CreatedBy     string
}

type CreatedLink struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

// CreateLink mints a single-use token bound to one appointment. A token
// collision on insert regenerates and retries a few times before giving up.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (CreatedLink, error) {
	if in.AppointmentID == "" {
		return CreatedLink{}, fmt.Errorf("%w: appointment id is required", ErrInvalidInput)
	}
	if _, ok, err := s.appointments.GetAppointment(ctx, in.AppointmentID); err != nil {
		return CreatedLink{}, err
	} else if !ok {
		return CreatedLink{}, ErrAppointmentNotFound
	}

	ttl := DefaultTTL
	if in.TTLHours > 0 {
		ttl = time.Duration(in.TTLHours) * time.Hour
	}
	expiresAt := s.now().Add(ttl)

	for attempt := 0; attempt < tokenRetries; attempt++ {
		token, err := newToken()
		if err != nil {
			return CreatedLink{}, err
		}
		link, err := s.links.CreateLink(ctx, model.RescheduleLink{
			AppointmentID: in.AppointmentID,
			Token:         token,
			ExpiresAt:     &expiresAt,
			CreatedBy:     in.CreatedBy,
		})
		if err != nil {
			if storage.IsConflict(err) {
				continue
			}
			return CreatedLink{}, err
		}
		return CreatedLink{
			Token:     link.Token,
			URL:       s.baseURL + "/reschedule/" + link.Token,
			ExpiresAt: expiresAt,
		}, nil
	}
	return CreatedLink{}, ErrTokenAllocation
}

type ApplyInput struct {
	Token     string
	ServiceID string
	StaffID   string // empty = keep the appointment's current staff
	StartsAt  time.Time
}

// ApplyReschedule redeems a link and moves its appointment. The checks run
// in a fixed order so callers can tell a link problem from a slot problem:
// token validity first, then the appointment and service, then availability,
// and only then the atomic consume-and-move write.
func (s *Service) ApplyReschedule(ctx context.Context, in ApplyInput) (model.Appointment, error) {
	if in.Token == "" || in.ServiceID == "" || in.StartsAt.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: token, service, and start time are required", ErrInvalidInput)
	}
	now := s.now()

	link, ok, err := s.links.GetLinkByToken(ctx, in.Token)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, ErrLinkNotFound
	}
	if link.UsedAt != nil {
		return model.Appointment{}, ErrLinkUsed
	}
	// A link is live strictly before its expiry instant.
	if link.ExpiresAt != nil && !link.ExpiresAt.After(now) {
		return model.Appointment{}, ErrLinkExpired
	}

	appt, ok, err := s.appointments.GetAppointment(ctx, link.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	if appt.ServiceID != "" && appt.ServiceID != in.ServiceID {
		return model.Appointment{}, ErrServiceMismatch
	}

	staffID := in.StaffID
	if staffID == "" {
		staffID = appt.StaffID
	}

	if err := s.requireSlot(ctx, in.ServiceID, staffID, in.StartsAt); err != nil {
		return model.Appointment{}, err
	}

	duration := appt.EndsAt.Sub(appt.StartsAt)
	if duration <= 0 {
		svc, ok, err := s.catalog.GetService(ctx, in.ServiceID)
		if err != nil {
			return model.Appointment{}, err
		}
		if ok && svc.DurationMinutes > 0 {
			duration = time.Duration(svc.DurationMinutes) * time.Minute
		} else {
			duration = availability.DefaultDuration
		}
	}
	endsAt := in.StartsAt.Add(duration)

	events := []outbox.Event{{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentRescheduled,
		Payload: mustJSON(map[string]any{
			"client_id": appt.ClientID,
			"staff_id":  staffID,
			"old_start": appt.StartsAt,
			"new_start": in.StartsAt,
			"new_end":   endsAt,
		}),
	}}

	updated, err := s.links.ApplyReschedule(ctx, link.ID, appt.ID, staffID, in.StartsAt, endsAt, now, events)
	if err != nil {
		if storage.IsNotFound(err) {
			// A concurrent redemption consumed the link between our read
			// and the guarded update.
			return model.Appointment{}, ErrLinkUsed
		}
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}

	if err := s.audit.Record(ctx, "appointment_rescheduled", link.CreatedBy, "appointment", updated.ID); err != nil {
		s.logger.Warn("audit record failed", "action", "appointment_rescheduled", "entity_id", updated.ID, "err", err)
	}
	return updated, nil
}

func (s *Service) requireSlot(ctx context.Context, serviceID, staffID string, start time.Time) error {
	slots, err := s.slots.ListSlots(ctx, availability.Query{
		ServiceID: serviceID,
		StaffID:   staffID,
		From:      start.Add(-revalidateWindow),
		To:        start.Add(revalidateWindow),
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

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
