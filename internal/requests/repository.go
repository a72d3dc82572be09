package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/shared"
)

// Repository persists material requests in PostgreSQL. Status moves use
// conditional updates (WHERE status = expected) so the compare-and-set guard
// is enforced by storage, not only by the service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, project_id, material_id, material_name, qty, unit, reason,
	requested_by, status, anomaly_flag, COALESCE(anomaly_reason, ''),
	COALESCE(approved_by, ''), approved_at, COALESCE(rejected_by, ''), rejected_at,
	COALESCE(rejection_reason, ''), created_at, updated_at`

// Insert stores a new pending request.
func (r *Repository) Insert(ctx context.Context, req MaterialRequest) (MaterialRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO material_requests
			(id, project_id, material_id, material_name, qty, unit, reason,
			 requested_by, status, anomaly_flag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $10)`
	_, err := r.pool.Exec(ctx, query,
		req.ID, req.ProjectID, req.MaterialID, req.MaterialName, req.Qty, req.Unit,
		req.Reason, req.RequestedBy, string(req.Status), req.CreatedAt)
	if err != nil {
		return MaterialRequest{}, err
	}
	return req, nil
}

// Get fetches a request by id.
func (r *Repository) Get(ctx context.Context, id string) (MaterialRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM material_requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaterialRequest{}, fmt.Errorf("requests: %s: %w", id, shared.ErrNotFound)
		}
		return MaterialRequest{}, err
	}
	return req, nil
}

// SetApproved moves pending → approved. Zero rows affected means the request
// either does not exist or already moved past pending.
func (r *Repository) SetApproved(ctx context.Context, id, approverID string, at time.Time) error {
	const query = `
		UPDATE material_requests
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`
	tag, err := r.pool.Exec(ctx, query, string(StatusApproved), approverID, at, id, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.stateConflict(ctx, id, StatusPending)
	}
	return nil
}

// SetRejected moves pending → rejected.
func (r *Repository) SetRejected(ctx context.Context, id, rejecterID, reason string, at time.Time) error {
	const query = `
		UPDATE material_requests
		SET status = $1, rejected_by = $2, rejected_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $5 AND status = $6`
	tag, err := r.pool.Exec(ctx, query, string(StatusRejected), rejecterID, at, reason, id, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.stateConflict(ctx, id, StatusPending)
	}
	return nil
}

// ListFilters narrows request listings.
type ListFilters struct {
	ProjectID string
	Status    Status
}

// List returns requests for a project, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]MaterialRequest, int, error) {
	const countQuery = `
		SELECT count(*) FROM material_requests
		WHERE project_id = $1 AND ($2 = '' OR status = $2)`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, filters.ProjectID, string(filters.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + `
		FROM material_requests
		WHERE project_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, filters.ProjectID, string(filters.Status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []MaterialRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, req)
	}
	return result, total, rows.Err()
}

// stateConflict distinguishes a missing row from a status mismatch after a
// conditional update touched nothing.
func (r *Repository) stateConflict(ctx context.Context, id string, expected Status) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("requests: %s is %s, want %s: %w", id, current.Status, expected, shared.ErrInvalidState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (MaterialRequest, error) {
	var (
		req    MaterialRequest
		status string
	)
	err := row.Scan(&req.ID, &req.ProjectID, &req.MaterialID, &req.MaterialName, &req.Qty,
		&req.Unit, &req.Reason, &req.RequestedBy, &status, &req.AnomalyFlag, &req.AnomalyReason,
		&req.ApprovedBy, &req.ApprovedAt, &req.RejectedBy, &req.RejectedAt,
		&req.RejectionReason, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return MaterialRequest{}, err
	}
	req.Status = Status(status)
	return req, nil
}
