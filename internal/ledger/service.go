package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitestock/sitestock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	Totals(ctx context.Context, projectID string) ([]MaterialBalance, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Entry, error)
	ProjectIDs(ctx context.Context) ([]string, error)
}

// Service appends movements and derives balances and alerts.
type Service struct {
	repo     RepositoryPort
	redis    *redis.Client
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewService constructs the ledger service. redis may be nil, which disables
// the balance cache.
func NewService(repo RepositoryPort, redisClient *redis.Client, logger *slog.Logger, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{repo: repo, redis: redisClient, logger: logger, cacheTTL: cacheTTL}
}

// Append records a movement. Appends are pure inserts with no read-modify-
// write, so they need no coordination.
func (s *Service) Append(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ProjectID == "" || entry.MaterialID == "" {
		return Entry{}, fmt.Errorf("ledger: project and material required: %w", shared.ErrValidation)
	}
	if entry.Movement != MovementIn && entry.Movement != MovementOut {
		return Entry{}, fmt.Errorf("ledger: movement %q: %w", entry.Movement, shared.ErrValidation)
	}
	switch entry.Source {
	case SourcePurchase, SourceUsage, SourceAdjustment:
	default:
		return Entry{}, fmt.Errorf("ledger: source %q: %w", entry.Source, shared.ErrValidation)
	}
	if !entry.Qty.IsPositive() {
		return Entry{}, fmt.Errorf("ledger: quantity must be positive: %w", shared.ErrValidation)
	}
	if entry.RefKind == "" {
		entry.RefKind = RefNone
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	created, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	s.invalidateBalance(ctx, entry.ProjectID)
	return created, nil
}

// Balance returns the per-material balance of a project, sorted by material
// name. Deterministic and idempotent; reads may be served from a short-lived
// cache, and any Redis failure falls through to SQL.
func (s *Service) Balance(ctx context.Context, projectID string) ([]MaterialBalance, error) {
	if cached, ok := s.cachedBalance(ctx, projectID); ok {
		return cached, nil
	}
	balances, err := s.repo.Totals(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.storeBalance(ctx, projectID, balances)
	return balances, nil
}

// Alerts flags materials whose balance is negative or whose usage materially
// exceeds supply.
func (s *Service) Alerts(ctx context.Context, projectID string) ([]Alert, error) {
	balances, err := s.Balance(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return evaluateAlerts(balances), nil
}

// Entries lists the raw movement history of a project.
func (s *Service) Entries(ctx context.Context, projectID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListByProject(ctx, projectID, limit, offset)
}

// InvalidateBalance drops the cached balance of a project. Callers that
// append entries on their own transaction invoke this after commit.
func (s *Service) InvalidateBalance(ctx context.Context, projectID string) {
	s.invalidateBalance(ctx, projectID)
}

// ProjectIDs lists projects with ledger activity.
func (s *Service) ProjectIDs(ctx context.Context) ([]string, error) {
	return s.repo.ProjectIDs(ctx)
}

func evaluateAlerts(balances []MaterialBalance) []Alert {
	var alerts []Alert
	for _, b := range balances {
		switch {
		case b.TotalIn.IsPositive() && b.TotalOut.GreaterThan(b.TotalIn.Mul(overageFactor)):
			alerts = append(alerts, Alert{
				MaterialID:   b.MaterialID,
				MaterialName: b.MaterialName,
				Reason:       AlertUsageExceedsSupply,
				TotalIn:      b.TotalIn,
				TotalOut:     b.TotalOut,
				Balance:      b.Balance,
			})
		case b.Balance.IsNegative():
			alerts = append(alerts, Alert{
				MaterialID:   b.MaterialID,
				MaterialName: b.MaterialName,
				Reason:       AlertNegativeBalance,
				TotalIn:      b.TotalIn,
				TotalOut:     b.TotalOut,
				Balance:      b.Balance,
			})
		}
	}
	return alerts
}

func (s *Service) cachedBalance(ctx context.Context, projectID string) ([]MaterialBalance, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, balanceKey(projectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("balance cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var balances []MaterialBalance
	if err := json.Unmarshal(raw, &balances); err != nil {
		return nil, false
	}
	return balances, true
}

func (s *Service) storeBalance(ctx context.Context, projectID string, balances []MaterialBalance) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(balances)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, balanceKey(projectID), raw, s.cacheTTL).Err(); err != nil && s.logger != nil {
		s.logger.Warn("balance cache write failed", slog.Any("error", err))
	}
}

func (s *Service) invalidateBalance(ctx context.Context, projectID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, balanceKey(projectID)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("balance cache invalidate failed", slog.Any("error", err))
	}
}

func balanceKey(projectID string) string {
	return "ledger:balance:" + projectID
}
