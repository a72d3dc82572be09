package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
)

type fakeScanner struct {
	projects []string
	alerts   map[string][]ledger.Alert
	err      error
}

func (f *fakeScanner) ProjectIDs(ctx context.Context) ([]string, error) {
	return f.projects, f.err
}

func (f *fakeScanner) Alerts(ctx context.Context, projectID string) ([]ledger.Alert, error) {
	return f.alerts[projectID], nil
}

type fakeMembers struct {
	members map[string][]directory.Member
}

func (f *fakeMembers) MembersByRole(ctx context.Context, projectID string, roles ...directory.Role) ([]directory.Member, error) {
	return f.members[projectID], nil
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureDispatcher) Notify(ctx context.Context, n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func TestStockAnomalyScanNotifiesManagers(t *testing.T) {
	scanner := &fakeScanner{
		projects: []string{"p1", "p2"},
		alerts: map[string][]ledger.Alert{
			"p1": {{
				MaterialID:   "m1",
				MaterialName: "Cement",
				Reason:       ledger.AlertNegativeBalance,
				Balance:      decimal.RequireFromString("-5"),
			}},
		},
	}
	members := &fakeMembers{members: map[string][]directory.Member{
		"p1": {
			{UserID: "mgr", Role: directory.RoleManager},
			{UserID: "owner", Role: directory.RoleOwner},
		},
	}}
	dispatcher := &captureDispatcher{}

	job := NewStockAnomalyScanJob(scanner, members, dispatcher, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStockAnomalyScan, nil))
	require.NoError(t, err)

	require.Len(t, dispatcher.sent, 2, "one notification per manager and owner")
	for _, n := range dispatcher.sent {
		require.Equal(t, notify.TypeStockAnomaly, n.Type)
		require.Equal(t, "p1", n.Data["project_id"])
	}
}

func TestStockAnomalyScanCleanProjects(t *testing.T) {
	scanner := &fakeScanner{projects: []string{"p1"}}
	dispatcher := &captureDispatcher{}

	job := NewStockAnomalyScanJob(scanner, &fakeMembers{}, dispatcher, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStockAnomalyScan, nil))
	require.NoError(t, err)
	require.Empty(t, dispatcher.sent)
}

func TestStockAnomalyScanPropagatesListError(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("pg down")}
	job := NewStockAnomalyScanJob(scanner, &fakeMembers{}, &captureDispatcher{}, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskStockAnomalyScan, nil))
	require.Error(t, err)
}
