package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/shared"
)

// Repository persists invoices in PostgreSQL. purchase_invoices carries a
// unique index on history_id; the invoice number comes from a sequence so
// numbers are never reused.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextNumber allocates the next invoice number.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	const query = `SELECT nextval('invoice_number_seq'), date_part('year', now())::int`
	var (
		seq  int64
		year int
	)
	if err := r.pool.QueryRow(ctx, query).Scan(&seq, &year); err != nil {
		return "", fmt.Errorf("billing: allocate invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%d-%06d", year, seq), nil
}

// Insert stores a new invoice. A duplicate history reference surfaces as
// shared.ErrDuplicateInvoice.
func (r *Repository) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO purchase_invoices
			(id, number, project_id, history_id, material_id, material_name, qty, unit,
			 base_price, gst_rate, gst_amount, total_amount, generated_by, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.Number, inv.ProjectID, inv.HistoryID, inv.MaterialID, inv.MaterialName,
		inv.Qty, inv.Unit, inv.BasePrice, inv.GSTRate, inv.GSTAmount, inv.TotalAmount,
		inv.GeneratedBy, inv.GeneratedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Invoice{}, fmt.Errorf("billing: history %s: %w", inv.HistoryID, shared.ErrDuplicateInvoice)
		}
		return Invoice{}, err
	}
	return inv, nil
}

// GetByHistory fetches the invoice issued for a purchase history, if any.
func (r *Repository) GetByHistory(ctx context.Context, historyID string) (Invoice, error) {
	const query = `
		SELECT id, number, project_id, history_id, material_id, material_name, qty, unit,
		       base_price, gst_rate, gst_amount, total_amount, generated_by, generated_at
		FROM purchase_invoices WHERE history_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, historyID))
}

// ListByProject returns invoices for a project, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Invoice, error) {
	const query = `
		SELECT id, number, project_id, history_id, material_id, material_name, qty, unit,
		       base_price, gst_rate, gst_amount, total_amount, generated_by, generated_at
		FROM purchase_invoices WHERE project_id = $1
		ORDER BY generated_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row pgx.Row) (Invoice, error) {
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("billing: invoice: %w", shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.ProjectID, &inv.HistoryID, &inv.MaterialID,
		&inv.MaterialName, &inv.Qty, &inv.Unit, &inv.BasePrice, &inv.GSTRate,
		&inv.GSTAmount, &inv.TotalAmount, &inv.GeneratedBy, &inv.GeneratedAt)
	return inv, err
}
