package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sitestock/sitestock/internal/notify"
)

const sweepBatchSize = 200

// SweepOutbox is the slice of the notify repository the sweep needs.
type SweepOutbox interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]notify.OutboxRow, error)
	MarkEnqueued(ctx context.Context, id string) error
}

// TaskEnqueuer pushes tasks onto the queue. *asynq.Client implements it.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OutboxSweepJob re-enqueues outbox rows that never made it onto the queue,
// or whose delivery failed and has retries left. Enqueueing happens in the
// request path on a best-effort basis; this cron is the safety net.
type OutboxSweepJob struct {
	Repo   SweepOutbox
	Client TaskEnqueuer
	Logger *slog.Logger
	MaxAge time.Duration
}

// NewOutboxSweepJob constructs the sweep handler.
func NewOutboxSweepJob(repo SweepOutbox, client TaskEnqueuer, logger *slog.Logger, maxAge time.Duration) *OutboxSweepJob {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &OutboxSweepJob{Repo: repo, Client: client, Logger: logger, MaxAge: maxAge}
}

// Handle executes one sweep pass.
func (j *OutboxSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil || j.Client == nil {
		return errors.New("outbox sweep: handler not configured")
	}
	rows, err := j.Repo.ListStale(ctx, j.MaxAge, sweepBatchSize)
	if err != nil {
		return err
	}
	requeued := 0
	for _, row := range rows {
		task, err := notify.NewDeliverTask(row.ID)
		if err != nil {
			continue
		}
		if _, err := j.Client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
			if j.Logger != nil {
				j.Logger.Warn("outbox sweep enqueue", slog.String("outbox_id", row.ID), slog.Any("error", err))
			}
			continue
		}
		_ = j.Repo.MarkEnqueued(ctx, row.ID)
		requeued++
	}
	if j.Logger != nil && len(rows) > 0 {
		j.Logger.Info("outbox sweep completed",
			slog.Int("stale", len(rows)),
			slog.Int("requeued", requeued))
	}
	return nil
}
