package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/internal/outbox"
	"github.com/pawprint-labs/groomsched/libs/db"
)

// LinkRepository persists single-use reschedule links.
type LinkRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewLinkRepository(pool *db.Pool, outboxRepo *outbox.Repository) *LinkRepository {
	return &LinkRepository{pool: pool, outbox: outboxRepo}
}

const linkColumns = `id::text, appointment_id::text, token, expires_at, used_at, COALESCE(created_by::text, ''), created_at`

func scanLink(row pgx.Row) (model.RescheduleLink, error) {
	var l model.RescheduleLink
	err := row.Scan(&l.ID, &l.AppointmentID, &l.Token, &l.ExpiresAt, &l.UsedAt, &l.CreatedBy, &l.CreatedAt)
	return l, err
}

// CreateLink inserts a link. A token collision trips the unique index and
// surfaces as a conflict error so the caller can regenerate and retry.
func (r *LinkRepository) CreateLink(ctx context.Context, link model.RescheduleLink) (model.RescheduleLink, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	return scanLink(r.pool.QueryRow(ctx, `
		INSERT INTO reschedule_links (id, appointment_id, token, expires_at, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING `+linkColumns+`
	`, link.ID, link.AppointmentID, link.Token, link.ExpiresAt, link.CreatedBy))
}

func (r *LinkRepository) GetLinkByToken(ctx context.Context, token string) (model.RescheduleLink, bool, error) {
	link, err := scanLink(r.pool.QueryRow(ctx, `
		SELECT `+linkColumns+`
		FROM reschedule_links
		WHERE token = $1
	`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RescheduleLink{}, false, nil
		}
		return model.RescheduleLink{}, false, err
	}
	return link, true, nil
}

// ApplyReschedule consumes the link and moves the appointment in one
// transaction. The guarded UPDATE on used_at is the single-use gate: if a
// concurrent redemption got there first, zero rows match and the whole
// transaction rolls back with pgx.ErrNoRows.
func (r *LinkRepository) ApplyReschedule(ctx context.Context, linkID, appointmentID, staffID string, startsAt, endsAt, usedAt time.Time, events []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE reschedule_links
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, linkID, usedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, pgx.ErrNoRows
	}

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET starts_at = $2, ends_at = $3, staff_id = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, startsAt, endsAt, staffID))
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
	return appt, nil
}
