package jobs

import "github.com/hibiken/asynq"

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskOutboxSweep re-enqueues notifications stuck in the outbox.
	TaskOutboxSweep = "notify:outbox_sweep"
	// TaskStockAnomalyScan walks every active project's stock ledger.
	TaskStockAnomalyScan = "stock:anomaly_scan"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewOutboxSweepTask constructs the sweep task.
func NewOutboxSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxSweep, nil)
}

// NewStockAnomalyScanTask constructs the anomaly scan task.
func NewStockAnomalyScanTask() *asynq.Task {
	return asynq.NewTask(TaskStockAnomalyScan, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
