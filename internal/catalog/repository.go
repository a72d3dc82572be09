package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/shared"
)

// Repository reads material master data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMaterial fetches one material by id.
func (r *Repository) GetMaterial(ctx context.Context, materialID string) (Material, error) {
	const query = `SELECT id, name, unit, unit_price, gst_rate, active FROM materials WHERE id = $1`
	var (
		m         Material
		unitPrice string
		gstRate   string
	)
	if err := r.pool.QueryRow(ctx, query, materialID).Scan(&m.ID, &m.Name, &m.Unit, &unitPrice, &gstRate, &m.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("catalog: material %s: %w", materialID, shared.ErrNotFound)
		}
		return Material{}, err
	}
	var err error
	if m.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return Material{}, fmt.Errorf("catalog: unit price for %s: %w", materialID, err)
	}
	if m.GSTRate, err = decimal.NewFromString(gstRate); err != nil {
		return Material{}, fmt.Errorf("catalog: gst rate for %s: %w", materialID, err)
	}
	return m, nil
}

// ListMaterials returns active materials ordered by name.
func (r *Repository) ListMaterials(ctx context.Context) ([]Material, error) {
	const query = `SELECT id, name, unit, unit_price, gst_rate, active FROM materials WHERE active ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var (
			m         Material
			unitPrice string
			gstRate   string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &unitPrice, &gstRate, &m.Active); err != nil {
			return nil, err
		}
		if m.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, err
		}
		if m.GSTRate, err = decimal.NewFromString(gstRate); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}
