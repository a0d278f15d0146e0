package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/libs/db"
)

// AppointmentRepository persists appointments and their add-on line items.
// Multi-row writes (appointment + lines + outbox events) run in one
// transaction so an operation's write set commits or rolls back whole.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id::text, staff_id::text, client_id::text, COALESCE(pet_id::text, ''), service_id::text,
	starts_at, ends_at, price_service_cents, price_addons_cents, discount_cents, tax_cents,
	status, COALESCE(notes, ''), COALESCE(created_by::text, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.StaffID, &a.ClientID, &a.PetID, &a.ServiceID,
		&a.StartsAt, &a.EndsAt, &a.PriceServiceCents, &a.PriceAddOnsCents, &a.DiscountCents, &a.TaxCents,
		&a.Status, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, bool, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// ListActiveAppointments returns active-status appointments overlapping
// [from, to), optionally for one staff member. Canceled and no-show rows
// never block time, so they are filtered here at the source.
func (r *AppointmentRepository) ListActiveAppointments(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = ANY($1)
			AND starts_at < $3
			AND ends_at > $2
			AND ($4 = '' OR staff_id::text = $4)
		ORDER BY starts_at ASC
	`, statusStrings(model.ActiveStatuses), from, to, staffID)
}

// ListAppointments is the calendar read: every appointment touching the
// window regardless of status.
func (r *AppointmentRepository) ListAppointments(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE starts_at < $2
			AND ends_at > $1
			AND ($3 = '' OR staff_id::text = $3)
		ORDER BY starts_at ASC
	`, from, to, staffID)
}

func (r *AppointmentRepository) list(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// CreateAppointment inserts the appointment, its add-on line items, and the
// outbox events in one transaction. An overlap rejected by the exclusion
// constraint surfaces as a conflict error (see IsConflict).
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt model.Appointment, lines []model.AppointmentAddOn, events []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, staff_id, client_id, pet_id, service_id, starts_at, ends_at,
			 price_service_cents, price_addons_cents, discount_cents, tax_cents, status, notes, created_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.StaffID, appt.ClientID, appt.PetID, appt.ServiceID, appt.StartsAt, appt.EndsAt,
		appt.PriceServiceCents, appt.PriceAddOnsCents, appt.DiscountCents, appt.TaxCents, appt.Status, appt.Notes, appt.CreatedBy))
	if err != nil {
		return model.Appointment{}, err
	}

	for _, line := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointment_add_ons (appointment_id, add_on_id, price_cents)
			VALUES ($1, $2, $3)
		`, created.ID, line.AddOnID, line.PriceCents); err != nil {
			return model.Appointment{}, err
		}
	}

	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

// UpdateAppointment writes only the patch's non-nil fields plus the outbox
// events in one transaction and returns the updated row. A time move
// rejected by the exclusion constraint surfaces as a conflict error.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, id string, patch model.AppointmentPatch, events []outbox.Event) (model.Appointment, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Discount != nil {
		add("discount_cents", *patch.Discount)
	}
	if patch.Tax != nil {
		add("tax_cents", *patch.Tax)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.StartsAt != nil {
		add("starts_at", *patch.StartsAt)
	}
	if patch.EndsAt != nil {
		add("ends_at", *patch.EndsAt)
	}
	if patch.StaffID != nil {
		add("staff_id", *patch.StaffID)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, args...))
	if err != nil {
		return model.Appointment{}, err
	}

	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

// ListAddOnLines returns the snapshotted add-on line items for one appointment.
func (r *AppointmentRepository) ListAddOnLines(ctx context.Context, appointmentID string) ([]model.AppointmentAddOn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_id::text, add_on_id::text, price_cents
		FROM appointment_add_ons
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentAddOn
	for rows.Next() {
		var line model.AppointmentAddOn
		if err := rows.Scan(&line.AppointmentID, &line.AddOnID, &line.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func statusStrings(statuses []model.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
