package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/shared"
)

// DeliverOutbox is the slice of the notify repository the delivery task
// needs.
type DeliverOutbox interface {
	GetOutbox(ctx context.Context, id string) (notify.OutboxRow, error)
	MarkDelivered(ctx context.Context, row notify.OutboxRow) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyGuard records processed keys. shared.IdempotencyStore
// implements it.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// NotifyDeliverJob drains one outbox row into the in-app notification feed.
// Asynq delivers at least once; the idempotency store keeps a retried task
// from writing the feed entry twice.
type NotifyDeliverJob struct {
	Repo        DeliverOutbox
	Idempotency IdempotencyGuard
	Logger      *slog.Logger
}

// NewNotifyDeliverJob constructs the delivery handler.
func NewNotifyDeliverJob(repo DeliverOutbox, idem IdempotencyGuard, logger *slog.Logger) *NotifyDeliverJob {
	return &NotifyDeliverJob{Repo: repo, Idempotency: idem, Logger: logger}
}

// Handle processes one notify:deliver task.
func (j *NotifyDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("notify deliver: handler not configured")
	}
	var payload notify.DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	row, err := j.Repo.GetOutbox(ctx, payload.OutboxID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	if row.Status == notify.StatusDelivered {
		return nil
	}

	if j.Idempotency != nil {
		err := j.Idempotency.CheckAndInsert(ctx, "notify:deliver:"+row.ID, "notify")
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := j.Repo.MarkDelivered(ctx, row); err != nil {
		if j.Idempotency != nil {
			_ = j.Idempotency.Delete(ctx, "notify:deliver:"+row.ID)
		}
		if markErr := j.Repo.MarkFailed(ctx, row.ID); markErr != nil && j.Logger != nil {
			j.Logger.Warn("outbox mark failed", slog.String("outbox_id", row.ID), slog.Any("error", markErr))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Debug("notification delivered",
			slog.String("outbox_id", row.ID),
			slog.String("user_id", row.UserID),
			slog.String("type", row.Type))
	}
	return nil
}
