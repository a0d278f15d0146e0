package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/pawprint-labs/groomsched/internal/model"
	"github.com/pawprint-labs/groomsched/libs/db"
)

// CatalogRepository reads the service and add-on catalogs. The catalogs are
// owned by the settings screens; this subsystem only reads them.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (model.Service, bool, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, base_price_cents, duration_minutes, buffer_pre_minutes, buffer_post_minutes, created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.BasePriceCents, &svc.DurationMinutes, &svc.BufferPreMinutes, &svc.BufferPostMinutes, &svc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, false, nil
		}
		return model.Service{}, false, err
	}
	return svc, true, nil
}

// GetAddOns returns the catalog rows for the given ids. Ids with no catalog
// row are simply absent from the result; the caller decides whether that is
// an error.
func (r *CatalogRepository) GetAddOns(ctx context.Context, ids []string) ([]model.AddOn, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, price_cents, created_at
		FROM add_ons
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AddOn
	for rows.Next() {
		var a model.AddOn
		if err := rows.Scan(&a.ID, &a.Name, &a.PriceCents, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
