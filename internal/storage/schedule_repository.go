package storage

import (
	"context"
	"time"

	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/libs/db"
)

// ScheduleRepository reads recurring availability rules and blackout periods.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// ListRules returns every availability rule, or just one staff member's when
// staffID is non-empty.
func (r *ScheduleRepository) ListRules(ctx context.Context, staffID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, recurrence, COALESCE(timezone, ''), buffer_pre_minutes, buffer_post_minutes, created_at
		FROM availability_rules
		WHERE ($1 = '' OR staff_id::text = $1)
		ORDER BY staff_id, created_at
	`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.ID, &rule.StaffID, &rule.Recurrence, &rule.Timezone, &rule.BufferPreMinutes, &rule.BufferPostMinutes, &rule.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) ListBlackouts(ctx context.Context, staffID string, from, to time.Time) ([]model.Blackout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, starts_at, ends_at, COALESCE(reason, '')
		FROM blackout_periods
		WHERE ends_at > $2
			AND starts_at < $3
			AND ($1 = '' OR staff_id::text = $1)
		ORDER BY starts_at ASC
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Blackout
	for rows.Next() {
		var b model.Blackout
		if err := rows.Scan(&b.ID, &b.StaffID, &b.StartsAt, &b.EndsAt, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
