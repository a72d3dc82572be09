package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	NextNumber(ctx context.Context) (string, error)
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
	GetByHistory(ctx context.Context, historyID string) (Invoice, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Invoice, error)
}

// AuditPort records issued invoices in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service allocates invoice numbers and persists invoices.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the invoice issuer.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// IssueInput carries the completed purchase the invoice is issued for. The
// monetary amounts were fixed at dispatch time and are copied verbatim.
type IssueInput struct {
	ProjectID    string
	HistoryID    string
	MaterialID   string
	MaterialName string
	Qty          decimal.Decimal
	Unit         string
	BasePrice    decimal.Decimal
	GSTRate      decimal.Decimal
	GSTAmount    decimal.Decimal
	TotalAmount  decimal.Decimal
	GeneratedBy  string
}

// Issue creates exactly one invoice per purchase history. A repeat call fails
// with shared.ErrDuplicateInvoice, guarding against double-submission under
// retry.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Invoice, error) {
	if input.HistoryID == "" || input.ProjectID == "" {
		return Invoice{}, fmt.Errorf("billing: history and project required: %w", shared.ErrValidation)
	}
	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		Number:       number,
		ProjectID:    input.ProjectID,
		HistoryID:    input.HistoryID,
		MaterialID:   input.MaterialID,
		MaterialName: input.MaterialName,
		Qty:          input.Qty,
		Unit:         input.Unit,
		BasePrice:    input.BasePrice,
		GSTRate:      input.GSTRate,
		GSTAmount:    input.GSTAmount,
		TotalAmount:  input.TotalAmount,
		GeneratedBy:  input.GeneratedBy,
		GeneratedAt:  time.Now().UTC(),
	}
	created, err := s.repo.Insert(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, created)
	return created, nil
}

// GetByHistory returns the invoice for a purchase history.
func (s *Service) GetByHistory(ctx context.Context, historyID string) (Invoice, error) {
	return s.repo.GetByHistory(ctx, historyID)
}

// ListByProject returns invoices for a project.
func (s *Service) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByProject(ctx, projectID, limit, offset)
}

func (s *Service) recordAudit(ctx context.Context, inv Invoice) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  inv.GeneratedBy,
		Action:   "INVOICE_ISSUE",
		Entity:   "purchase_invoice",
		EntityID: inv.ID,
		Meta:     map[string]any{"number": inv.Number, "total": inv.TotalAmount.String()},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("invoice audit failed", slog.Any("error", err))
	}
}
