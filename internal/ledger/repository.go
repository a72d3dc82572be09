package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL. stock_ledger is
// insert-only; there is no update or delete statement in this package.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO stock_ledger
			(id, project_id, material_id, material_name, movement, qty, unit,
			 source, ref_kind, ref_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.ProjectID, entry.MaterialID, entry.MaterialName,
		string(entry.Movement), entry.Qty, entry.Unit, string(entry.Source),
		string(entry.RefKind), entry.RefID, entry.ActorID, entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Totals aggregates IN and OUT sums per material for a project, sorted by
// material name.
func (r *Repository) Totals(ctx context.Context, projectID string) ([]MaterialBalance, error) {
	const query = `
		SELECT material_id, material_name, unit,
		       COALESCE(SUM(qty) FILTER (WHERE movement = 'IN'), 0)  AS total_in,
		       COALESCE(SUM(qty) FILTER (WHERE movement = 'OUT'), 0) AS total_out
		FROM stock_ledger
		WHERE project_id = $1
		GROUP BY material_id, material_name, unit
		ORDER BY material_name`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []MaterialBalance
	for rows.Next() {
		var b MaterialBalance
		if err := rows.Scan(&b.MaterialID, &b.MaterialName, &b.Unit, &b.TotalIn, &b.TotalOut); err != nil {
			return nil, err
		}
		b.Balance = b.TotalIn.Sub(b.TotalOut)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListByProject returns entries newest first, for the movement history view.
func (r *Repository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Entry, error) {
	const query = `
		SELECT id, project_id, material_id, material_name, movement, qty, unit,
		       source, ref_kind, COALESCE(ref_id::text, ''), actor_id, created_at
		FROM stock_ledger
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			movement string
			source   string
			refKind  string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.MaterialID, &e.MaterialName,
			&movement, &e.Qty, &e.Unit, &source, &refKind, &e.RefID, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Movement = Movement(movement)
		e.Source = Source(source)
		e.RefKind = RefKind(refKind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProjectIDs lists projects with ledger activity, used by the anomaly scan.
func (r *Repository) ProjectIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT project_id FROM stock_ledger`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
