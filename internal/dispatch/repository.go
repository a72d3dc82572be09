package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/shared"
)

// Repository persists purchase histories. The send and receive flows run
// inside repeatable-read transactions; purchase_history carries a unique
// index on request_id so a duplicate dispatch loses the race at storage, not
// only at the application check.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	InsertHistory(ctx context.Context, h PurchaseHistory) error
	MarkRequestSent(ctx context.Context, requestID string, at time.Time) error
	MarkReceived(ctx context.Context, h PurchaseHistory) error
	MarkRequestReceived(ctx context.Context, requestID string, at time.Time) error
	AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const historyColumns = `id, project_id, request_id, material_id, material_name, qty, unit,
	unit_price, gst_rate, base_price, gst_amount, total_cost, status, sent_by, sent_at,
	COALESCE(received_by, ''), received_at, COALESCE(proof_photo_url, ''), latitude,
	longitude, COALESCE(geo_location, ''), grn_generated, grn_generated_at`

// Get fetches a history by id.
func (r *Repository) Get(ctx context.Context, id string) (PurchaseHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM purchase_history WHERE id = $1`
	h, err := scanHistory(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseHistory{}, fmt.Errorf("dispatch: history %s: %w", id, shared.ErrNotFound)
		}
		return PurchaseHistory{}, err
	}
	return h, nil
}

// GetByRequest fetches the history created for a request, if any.
func (r *Repository) GetByRequest(ctx context.Context, requestID string) (PurchaseHistory, bool, error) {
	query := `SELECT ` + historyColumns + ` FROM purchase_history WHERE request_id = $1`
	h, err := scanHistory(r.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseHistory{}, false, nil
		}
		return PurchaseHistory{}, false, err
	}
	return h, true, nil
}

// ListFilters narrows history listings.
type ListFilters struct {
	ProjectID string
	Status    Status
}

// List returns histories for a project, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]PurchaseHistory, int, error) {
	const countQuery = `
		SELECT count(*) FROM purchase_history
		WHERE project_id = $1 AND ($2 = '' OR status = $2)`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, filters.ProjectID, string(filters.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + historyColumns + `
		FROM purchase_history
		WHERE project_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY sent_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, filters.ProjectID, string(filters.Status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []PurchaseHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, h)
	}
	return result, total, rows.Err()
}

// InsertHistory stores a new PENDING_GRN row. A second dispatch of the same
// request violates the unique index and surfaces as shared.ErrAlreadySent.
func (r *txRepo) InsertHistory(ctx context.Context, h PurchaseHistory) error {
	const query = `
		INSERT INTO purchase_history
			(id, project_id, request_id, material_id, material_name, qty, unit,
			 unit_price, gst_rate, base_price, gst_amount, total_cost, status,
			 sent_by, sent_at, grn_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false)`
	_, err := r.tx.Exec(ctx, query,
		h.ID, h.ProjectID, h.RequestID, h.MaterialID, h.MaterialName, h.Qty, h.Unit,
		h.UnitPrice, h.GSTRate, h.BasePrice, h.GSTAmount, h.TotalCost, string(h.Status),
		h.SentBy, h.SentAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("dispatch: request %s: %w", h.RequestID, shared.ErrAlreadySent)
		}
		return err
	}
	return nil
}

// MarkRequestSent flips the originating request approved → sent.
func (r *txRepo) MarkRequestSent(ctx context.Context, requestID string, at time.Time) error {
	const query = `
		UPDATE material_requests SET status = 'sent', updated_at = $1
		WHERE id = $2 AND status = 'approved'`
	tag, err := r.tx.Exec(ctx, query, at, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch: request %s not approved: %w", requestID, shared.ErrInvalidState)
	}
	return nil
}

// MarkReceived finalises the GRN fields of a history. The WHERE clause
// accepts both awaiting statuses and refuses everything else.
func (r *txRepo) MarkReceived(ctx context.Context, h PurchaseHistory) error {
	const query = `
		UPDATE purchase_history
		SET status = 'RECEIVED', received_by = $1, received_at = $2,
		    proof_photo_url = $3, latitude = $4, longitude = $5, geo_location = $6,
		    grn_generated = true, grn_generated_at = $2
		WHERE id = $7 AND status IN ('PENDING_GRN', 'SENT')`
	tag, err := r.tx.Exec(ctx, query,
		h.ReceivedBy, h.ReceivedAt, h.ProofPhotoURL, h.Latitude, h.Longitude,
		h.GeoLocation, h.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch: history %s: %w", h.ID, shared.ErrAlreadyReceived)
	}
	return nil
}

// MarkRequestReceived flips the originating request sent → received.
func (r *txRepo) MarkRequestReceived(ctx context.Context, requestID string, at time.Time) error {
	const query = `
		UPDATE material_requests SET status = 'received', updated_at = $1
		WHERE id = $2 AND status = 'sent'`
	tag, err := r.tx.Exec(ctx, query, at, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch: request %s not sent: %w", requestID, shared.ErrInvalidState)
	}
	return nil
}

// AppendLedgerEntry writes the stock movement on the receive transaction.
// The ledger row commits or rolls back together with the status flips, so a
// failed receipt leaves no stock behind and a retry cannot double-count.
func (r *txRepo) AppendLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO stock_ledger
			(id, project_id, material_id, material_name, movement, qty, unit,
			 source, ref_kind, ref_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`
	_, err := r.tx.Exec(ctx, query,
		entry.ID, entry.ProjectID, entry.MaterialID, entry.MaterialName,
		string(entry.Movement), entry.Qty, entry.Unit, string(entry.Source),
		string(entry.RefKind), entry.RefID, entry.ActorID, entry.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (PurchaseHistory, error) {
	var (
		h      PurchaseHistory
		status string
	)
	err := row.Scan(&h.ID, &h.ProjectID, &h.RequestID, &h.MaterialID, &h.MaterialName,
		&h.Qty, &h.Unit, &h.UnitPrice, &h.GSTRate, &h.BasePrice, &h.GSTAmount,
		&h.TotalCost, &status, &h.SentBy, &h.SentAt, &h.ReceivedBy, &h.ReceivedAt,
		&h.ProofPhotoURL, &h.Latitude, &h.Longitude, &h.GeoLocation,
		&h.GRNGenerated, &h.GRNGeneratedAt)
	if err != nil {
		return PurchaseHistory{}, err
	}
	h.Status = Status(status)
	return h, nil
}

// NewHistoryID allocates an id for a new history row.
func NewHistoryID() string {
	return uuid.NewString()
}
