package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
)

const anomalyScanConcurrency = 4

// LedgerScanner is the slice of the stock ledger the scan needs.
type LedgerScanner interface {
	ProjectIDs(ctx context.Context) ([]string, error)
	Alerts(ctx context.Context, projectID string) ([]ledger.Alert, error)
}

// DirectoryPort resolves who gets told about a project's anomalies.
type DirectoryPort interface {
	MembersByRole(ctx context.Context, projectID string, roles ...directory.Role) ([]directory.Member, error)
}

// StockAnomalyScanJob walks every project with ledger activity and notifies
// managers and owners about negative balances and usage overruns.
type StockAnomalyScanJob struct {
	Ledger     LedgerScanner
	Directory  DirectoryPort
	Dispatcher notify.Dispatcher
	Logger     *slog.Logger
}

// NewStockAnomalyScanJob constructs the scan handler.
func NewStockAnomalyScanJob(ledgerSvc LedgerScanner, dir DirectoryPort, dispatcher notify.Dispatcher, logger *slog.Logger) *StockAnomalyScanJob {
	return &StockAnomalyScanJob{Ledger: ledgerSvc, Directory: dir, Dispatcher: dispatcher, Logger: logger}
}

// Handle executes one full scan.
func (j *StockAnomalyScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("anomaly scan: handler not configured")
	}
	start := time.Now()
	projectIDs, err := j.Ledger.ProjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("anomaly scan: list projects: %w", err)
	}

	var flagged atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(anomalyScanConcurrency)
	for _, projectID := range projectIDs {
		projectID := projectID
		g.Go(func() error {
			alerts, err := j.Ledger.Alerts(gctx, projectID)
			if err != nil {
				return fmt.Errorf("anomaly scan: project %s: %w", projectID, err)
			}
			if len(alerts) == 0 {
				return nil
			}
			flagged.Add(int64(len(alerts)))
			j.report(gctx, projectID, alerts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("stock anomaly scan completed",
			slog.Int("projects", len(projectIDs)),
			slog.Int64("alerts", flagged.Load()),
			slog.Duration("duration", time.Since(start)))
	}
	return nil
}

func (j *StockAnomalyScanJob) report(ctx context.Context, projectID string, alerts []ledger.Alert) {
	for _, a := range alerts {
		if j.Logger != nil {
			j.Logger.Warn("stock anomaly detected",
				slog.String("project_id", projectID),
				slog.String("material", a.MaterialName),
				slog.String("reason", a.Reason),
				slog.String("balance", a.Balance.String()))
		}
	}
	if j.Dispatcher == nil || j.Directory == nil {
		return
	}
	members, err := j.Directory.MembersByRole(ctx, projectID, directory.RoleManager, directory.RoleOwner)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Warn("anomaly scan member lookup", slog.String("project_id", projectID), slog.Any("error", err))
		}
		return
	}
	for _, member := range members {
		for _, a := range alerts {
			j.Dispatcher.Notify(ctx, notify.Notification{
				UserID:  member.UserID,
				Type:    notify.TypeStockAnomaly,
				Title:   "Stock anomaly",
				Message: fmt.Sprintf("%s: %s (balance %s)", a.MaterialName, a.Reason, a.Balance.String()),
				Data: map[string]any{
					"project_id":  projectID,
					"material_id": a.MaterialID,
					"reason":      a.Reason,
					"balance":     a.Balance.String(),
				},
			})
		}
	}
}
