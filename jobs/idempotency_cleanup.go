package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sitestock/sitestock/internal/shared"
)

// idempotencyRetention is how long processed keys stay before pruning.
const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleanupJob prunes aged idempotency keys.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger}
}

// Handle executes one cleanup pass.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if err := j.Store.Cleanup(ctx, idempotencyRetention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Debug("idempotency keys pruned")
	}
	return nil
}
