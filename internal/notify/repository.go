package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/shared"
)

// Repository persists the notification outbox and the in-app feed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertOutbox stores a new PENDING outbox row.
func (r *Repository) InsertOutbox(ctx context.Context, n Notification) (OutboxRow, error) {
	row := OutboxRow{
		ID:        uuid.NewString(),
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(n.Data)
	if err != nil {
		return OutboxRow{}, fmt.Errorf("notify: marshal payload: %w", err)
	}
	const query = `
		INSERT INTO notification_outbox (id, user_id, type, title, message, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`
	_, err = r.pool.Exec(ctx, query, row.ID, row.UserID, row.Type, row.Title, row.Message, payload, string(row.Status), row.CreatedAt)
	if err != nil {
		return OutboxRow{}, err
	}
	return row, nil
}

// GetOutbox loads one outbox row.
func (r *Repository) GetOutbox(ctx context.Context, id string) (OutboxRow, error) {
	const query = `
		SELECT id, user_id, type, title, message, payload, status, attempts, created_at, delivered_at
		FROM notification_outbox WHERE id = $1`
	var (
		row     OutboxRow
		payload []byte
		status  string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&row.ID, &row.UserID, &row.Type, &row.Title,
		&row.Message, &payload, &status, &row.Attempts, &row.CreatedAt, &row.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OutboxRow{}, fmt.Errorf("notify: outbox %s: %w", id, shared.ErrNotFound)
		}
		return OutboxRow{}, err
	}
	row.Status = Status(status)
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &row.Data)
	}
	return row, nil
}

// MarkEnqueued flips a PENDING row to ENQUEUED.
func (r *Repository) MarkEnqueued(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $1 WHERE id = $2 AND status = $3`,
		string(StatusEnqueued), id, string(StatusPending))
	return err
}

// MarkDelivered finalises a row and writes the in-app feed entry.
func (r *Repository) MarkDelivered(ctx context.Context, row OutboxRow) error {
	payload, err := json.Marshal(row.Data)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO notifications (id, user_id, type, title, message, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), row.UserID, row.Type, row.Title, row.Message, payload, now)
	batch.Queue(
		`UPDATE notification_outbox SET status = $1, delivered_at = $2 WHERE id = $3`,
		string(StatusDelivered), now, row.ID)
	return r.pool.SendBatch(ctx, batch).Close()
}

// MarkFailed bumps the attempt counter and records the failure.
func (r *Repository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $1, attempts = attempts + 1 WHERE id = $2`,
		string(StatusFailed), id)
	return err
}

// ListStale returns PENDING rows older than the cutoff, for the sweep cron.
func (r *Repository) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]OutboxRow, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	const query = `
		SELECT id, user_id, type, title, message, payload, status, attempts, created_at, delivered_at
		FROM notification_outbox
		WHERE status IN ('PENDING', 'FAILED') AND created_at < $1 AND attempts < 5
		ORDER BY created_at
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OutboxRow
	for rows.Next() {
		var (
			row     OutboxRow
			payload []byte
			status  string
		)
		if err := rows.Scan(&row.ID, &row.UserID, &row.Type, &row.Title, &row.Message,
			&payload, &status, &row.Attempts, &row.CreatedAt, &row.DeliveredAt); err != nil {
			return nil, err
		}
		row.Status = Status(status)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &row.Data)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
