package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliver is the asynq task type that drains the outbox.
const TaskTypeDeliver = "notify:deliver"

// DeliverPayload identifies the outbox row an asynq task should deliver.
type DeliverPayload struct {
	OutboxID string `json:"outbox_id"`
}

// NewDeliverTask constructs the delivery task for one outbox row.
func NewDeliverTask(outboxID string) (*asynq.Task, error) {
	data, err := json.Marshal(DeliverPayload{OutboxID: outboxID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data, asynq.MaxRetry(5)), nil
}

// RepositoryPort describes outbox persistence used by the dispatcher.
type RepositoryPort interface {
	InsertOutbox(ctx context.Context, n Notification) (OutboxRow, error)
	MarkEnqueued(ctx context.Context, id string) error
}

// Dispatcher pushes state-change events to affected users. Implementations
// are best effort: Notify never reports failure to the caller.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification)
}

// OutboxDispatcher persists each notification and enqueues an asynq delivery
// task. Every failure is logged and swallowed; an undelivered row stays
// PENDING and is picked up by the sweep cron.
type OutboxDispatcher struct {
	repo   RepositoryPort
	client *asynq.Client
	logger *slog.Logger
}

// NewOutboxDispatcher constructs the dispatcher. client may be nil, in which
// case rows wait for the sweep cron.
func NewOutboxDispatcher(repo RepositoryPort, client *asynq.Client, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{repo: repo, client: client, logger: logger}
}

// Notify records and enqueues one notification.
func (d *OutboxDispatcher) Notify(ctx context.Context, n Notification) {
	if d == nil || d.repo == nil || n.UserID == "" {
		return
	}
	row, err := d.repo.InsertOutbox(ctx, n)
	if err != nil {
		d.warn("notification outbox insert failed", n, err)
		return
	}
	if d.client == nil {
		return
	}
	task, err := NewDeliverTask(row.ID)
	if err != nil {
		d.warn("notification task build failed", n, err)
		return
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		d.warn("notification enqueue failed", n, err)
		return
	}
	if err := d.repo.MarkEnqueued(ctx, row.ID); err != nil {
		d.warn("notification enqueue mark failed", n, err)
	}
}

func (d *OutboxDispatcher) warn(msg string, n Notification, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg,
		slog.String("user_id", n.UserID),
		slog.String("type", n.Type),
		slog.Any("error", err))
}
