package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryOutbox struct {
	rows        []OutboxRow
	insertErr   error
	enqueuedIDs []string
	enqueueErr  error
}

func (m *memoryOutbox) InsertOutbox(ctx context.Context, n Notification) (OutboxRow, error) {
	if m.insertErr != nil {
		return OutboxRow{}, m.insertErr
	}
	row := OutboxRow{ID: "ob-1", UserID: n.UserID, Type: n.Type, Status: StatusPending}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *memoryOutbox) MarkEnqueued(ctx context.Context, id string) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueuedIDs = append(m.enqueuedIDs, id)
	return nil
}

func TestNotifyPersistsOutboxRow(t *testing.T) {
	outbox := &memoryOutbox{}
	d := NewOutboxDispatcher(outbox, nil, nil)

	d.Notify(context.Background(), Notification{
		UserID:  "u1",
		Type:    TypeRequestApproved,
		Title:   "Approved",
		Message: "your request was approved",
	})

	require.Len(t, outbox.rows, 1)
	require.Equal(t, StatusPending, outbox.rows[0].Status)
	require.Empty(t, outbox.enqueuedIDs, "without a queue client the row waits for the sweep")
}

func TestNotifySwallowsInsertFailure(t *testing.T) {
	outbox := &memoryOutbox{insertErr: errors.New("pg down")}
	d := NewOutboxDispatcher(outbox, nil, nil)

	// Must not panic or propagate; the caller's transition already
	// committed.
	d.Notify(context.Background(), Notification{UserID: "u1", Type: TypeGRNConfirmed})
	require.Empty(t, outbox.rows)
}

func TestNotifyIgnoresEmptyRecipient(t *testing.T) {
	outbox := &memoryOutbox{}
	d := NewOutboxDispatcher(outbox, nil, nil)

	d.Notify(context.Background(), Notification{Type: TypeRequestCreated})
	require.Empty(t, outbox.rows)
}

func TestNotifyNilDispatcher(t *testing.T) {
	var d *OutboxDispatcher
	require.NotPanics(t, func() {
		d.Notify(context.Background(), Notification{UserID: "u1"})
	})
}
