package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/sitestock/sitestock/internal/notify"
)

type fakeSweepOutbox struct {
	stale    []notify.OutboxRow
	enqueued []string
	listErr  error
}

func (f *fakeSweepOutbox) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]notify.OutboxRow, error) {
	return f.stale, f.listErr
}

func (f *fakeSweepOutbox) MarkEnqueued(ctx context.Context, id string) error {
	f.enqueued = append(f.enqueued, id)
	return nil
}

type fakeEnqueuer struct {
	tasks     []*asynq.Task
	failFirst bool
	calls     int
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.calls++
	if f.failFirst && f.calls == 1 {
		return nil, errors.New("redis: connection refused")
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestOutboxSweepRequeuesStaleRows(t *testing.T) {
	repo := &fakeSweepOutbox{stale: []notify.OutboxRow{
		{ID: "ob-1", Status: notify.StatusPending},
		{ID: "ob-2", Status: notify.StatusFailed},
	}}
	client := &fakeEnqueuer{}
	job := NewOutboxSweepJob(repo, client, nil, time.Minute)

	err := job.Handle(context.Background(), NewOutboxSweepTask())
	require.NoError(t, err)
	require.Equal(t, []string{"ob-1", "ob-2"}, repo.enqueued)
	require.Len(t, client.tasks, 2)
	for i, task := range client.tasks {
		require.Equal(t, notify.TaskTypeDeliver, task.Type())
		var payload notify.DeliverPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		require.Equal(t, repo.stale[i].ID, payload.OutboxID)
	}
}

func TestOutboxSweepContinuesPastEnqueueFailure(t *testing.T) {
	repo := &fakeSweepOutbox{stale: []notify.OutboxRow{
		{ID: "ob-1", Status: notify.StatusPending},
		{ID: "ob-2", Status: notify.StatusPending},
	}}
	client := &fakeEnqueuer{failFirst: true}
	job := NewOutboxSweepJob(repo, client, nil, time.Minute)

	err := job.Handle(context.Background(), NewOutboxSweepTask())
	require.NoError(t, err)
	// ob-1 stays PENDING for the next pass; ob-2 made it onto the queue.
	require.Equal(t, []string{"ob-2"}, repo.enqueued)
	require.Len(t, client.tasks, 1)
}

func TestOutboxSweepPropagatesListError(t *testing.T) {
	repo := &fakeSweepOutbox{listErr: errors.New("pg down")}
	job := NewOutboxSweepJob(repo, &fakeEnqueuer{}, nil, time.Minute)

	err := job.Handle(context.Background(), NewOutboxSweepTask())
	require.Error(t, err)
}
