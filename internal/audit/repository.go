package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pawprint-labs/groomsched/libs/db"
)

// Repository appends to the audit trail. Writes are fire-and-forget from the
// scheduling core's perspective: a failed append is logged by the caller and
// never inverts the outcome of the operation being audited.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, action, actorID, entity, entityID string) error {
	meta, err := json.Marshal(map[string]string{"entity": entity, "entity_id": entityID})
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (action, actor_id, metadata)
		VALUES ($1, NULLIF($2, ''), $3)
	`, action, actorID, meta)
	return err
}

type Event struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, COALESCE(actor_id::text, ''), metadata, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}
