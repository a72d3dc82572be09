package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/billing"
	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/requests"
	"github.com/sitestock/sitestock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (PurchaseHistory, error)
	GetByRequest(ctx context.Context, requestID string) (PurchaseHistory, bool, error)
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]PurchaseHistory, int, error)
}

// RequestsPort loads material requests.
type RequestsPort interface {
	Get(ctx context.Context, requestID string) (requests.MaterialRequest, error)
}

// CatalogPort resolves unit prices. A missing price is tolerated, not fatal.
type CatalogPort interface {
	UnitPrice(ctx context.Context, materialID string) (decimal.Decimal, bool)
}

// DirectoryPort resolves roles, members and the project GST state.
type DirectoryPort interface {
	HasAnyRole(ctx context.Context, projectID, userID string, roles ...directory.Role) (bool, error)
	MembersByRole(ctx context.Context, projectID string, roles ...directory.Role) ([]directory.Member, error)
	Project(ctx context.Context, projectID string) (directory.Project, error)
}

// LedgerPort drops derived stock balances. The receive flow appends its
// ledger entry on the repository transaction; the port only invalidates the
// cache after commit.
type LedgerPort interface {
	InvalidateBalance(ctx context.Context, projectID string)
}

// InvoicePort issues the purchase invoice after a confirmed GRN.
type InvoicePort interface {
	Issue(ctx context.Context, input billing.IssueInput) (billing.Invoice, error)
}

// AuditPort records protocol transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config carries the billing context of the supplying entity.
type Config struct {
	SupplierState  string
	DefaultGSTRate decimal.Decimal
}

// Service orchestrates the send/receive protocol.
type Service struct {
	repo       RepositoryPort
	requests   RequestsPort
	catalog    CatalogPort
	dir        DirectoryPort
	ledger     LedgerPort
	invoices   InvoicePort
	dispatcher notify.Dispatcher
	audit      AuditPort
	logger     *slog.Logger
	cfg        Config
}

// NewService constructs the dispatch service.
func NewService(repo RepositoryPort, reqs RequestsPort, catalog CatalogPort, dir DirectoryPort, led LedgerPort, invoices InvoicePort, dispatcher notify.Dispatcher, audit AuditPort, logger *slog.Logger, cfg Config) *Service {
	if cfg.DefaultGSTRate.IsZero() {
		cfg.DefaultGSTRate = decimal.NewFromInt(18)
	}
	return &Service{repo: repo, requests: reqs, catalog: catalog, dir: dir, ledger: led, invoices: invoices, dispatcher: dispatcher, audit: audit, logger: logger, cfg: cfg}
}

// SendInput describes a dispatch action.
type SendInput struct {
	RequestID string
	ActorID   string
	// GSTRate overrides the configured default when positive.
	GSTRate decimal.Decimal
}

// Send dispatches the goods for an approved request: it prices the material,
// creates the PENDING_GRN history and flips the request to sent in one
// transaction. A duplicate send fails with shared.ErrAlreadySent; the unique
// index on request_id closes the race between check and create.
func (s *Service) Send(ctx context.Context, input SendInput) (PurchaseHistory, error) {
	req, err := s.requests.Get(ctx, input.RequestID)
	if err != nil {
		return PurchaseHistory{}, err
	}
	if err := s.requireRole(ctx, req.ProjectID, input.ActorID, directory.RolePurchase); err != nil {
		return PurchaseHistory{}, err
	}
	if _, exists, err := s.repo.GetByRequest(ctx, input.RequestID); err != nil {
		return PurchaseHistory{}, err
	} else if exists {
		return PurchaseHistory{}, fmt.Errorf("dispatch: request %s: %w", input.RequestID, shared.ErrAlreadySent)
	}
	if req.Status != requests.StatusApproved {
		return PurchaseHistory{}, fmt.Errorf("dispatch: request %s is %s, want approved: %w", req.ID, req.Status, shared.ErrInvalidState)
	}

	gstRate := input.GSTRate
	if !gstRate.IsPositive() {
		gstRate = s.cfg.DefaultGSTRate
	}
	unitPrice, found := s.catalog.UnitPrice(ctx, req.MaterialID)
	if !found {
		s.logWarn("catalog price missing, dispatching at zero", slog.String("material_id", req.MaterialID))
		unitPrice = decimal.Zero
	}

	basePrice := unitPrice.Mul(req.Qty).Round(2)
	gstAmount := s.gstAmount(ctx, req.ProjectID, basePrice, gstRate)
	totalCost := basePrice.Add(gstAmount)

	now := time.Now().UTC()
	history := PurchaseHistory{
		ID:           NewHistoryID(),
		ProjectID:    req.ProjectID,
		RequestID:    req.ID,
		MaterialID:   req.MaterialID,
		MaterialName: req.MaterialName,
		Qty:          req.Qty,
		Unit:         req.Unit,
		UnitPrice:    unitPrice,
		GSTRate:      gstRate,
		BasePrice:    basePrice,
		GSTAmount:    gstAmount,
		TotalCost:    totalCost,
		Status:       StatusPendingGRN,
		SentBy:       input.ActorID,
		SentAt:       now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertHistory(ctx, history); err != nil {
			return err
		}
		return tx.MarkRequestSent(ctx, req.ID, now)
	})
	if err != nil {
		return PurchaseHistory{}, err
	}

	s.recordAudit(ctx, input.ActorID, "MATERIAL_SEND", history.ID, map[string]any{
		"request_id": req.ID, "total_cost": totalCost.String(),
	})
	s.notifyUser(ctx, req.RequestedBy, notify.Notification{
		Type:    notify.TypeMaterialSent,
		Title:   "Material dispatched",
		Message: fmt.Sprintf("%s %s of %s is on its way", req.Qty, req.Unit, req.MaterialName),
		Data:    map[string]any{"history_id": history.ID, "request_id": req.ID},
	})
	return history, nil
}

// ReceiveInput describes a GRN confirmation. Latitude and longitude are
// pointers so an absent coordinate is distinguishable from zero.
type ReceiveInput struct {
	HistoryID     string
	ActorID       string
	ProofPhotoURL string
	Latitude      *float64
	Longitude     *float64
	GeoLocation   string
}

// Receive confirms physical receipt. The history finalisation, the request
// flip and the stock ledger IN entry commit in one transaction; a failed
// commit leaves no partial receipt and the retry starts clean. Invoice
// issuance and notifications run after the commit and are best effort; their
// failure never undoes the receipt.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (PurchaseHistory, error) {
	history, err := s.repo.Get(ctx, input.HistoryID)
	if err != nil {
		return PurchaseHistory{}, err
	}
	if history.Status == StatusReceived {
		return PurchaseHistory{}, fmt.Errorf("dispatch: history %s: %w", history.ID, shared.ErrAlreadyReceived)
	}
	if err := ValidEvidence(input.ProofPhotoURL, input.Latitude, input.Longitude); err != nil {
		return PurchaseHistory{}, err
	}
	if err := s.requireRole(ctx, history.ProjectID, input.ActorID, directory.RoleEngineer); err != nil {
		return PurchaseHistory{}, err
	}
	if err := history.Receive(); err != nil {
		return PurchaseHistory{}, err
	}

	now := time.Now().UTC()
	history.ReceivedBy = input.ActorID
	history.ReceivedAt = &now
	history.ProofPhotoURL = input.ProofPhotoURL
	history.Latitude = input.Latitude
	history.Longitude = input.Longitude
	history.GeoLocation = input.GeoLocation
	history.GRNGenerated = true
	history.GRNGeneratedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkReceived(ctx, history); err != nil {
			return err
		}
		if err := tx.MarkRequestReceived(ctx, history.RequestID, now); err != nil {
			return err
		}
		return tx.AppendLedgerEntry(ctx, ledger.Entry{
			ProjectID:    history.ProjectID,
			MaterialID:   history.MaterialID,
			MaterialName: history.MaterialName,
			Movement:     ledger.MovementIn,
			Qty:          history.Qty,
			Unit:         history.Unit,
			Source:       ledger.SourcePurchase,
			RefKind:      ledger.RefMaterialRequest,
			RefID:        history.RequestID,
			ActorID:      input.ActorID,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return PurchaseHistory{}, err
	}
	if s.ledger != nil {
		s.ledger.InvalidateBalance(ctx, history.ProjectID)
	}

	s.issueInvoice(ctx, history)
	s.recordAudit(ctx, input.ActorID, "GRN_CONFIRM", history.ID, map[string]any{
		"request_id": history.RequestID, "qty": history.Qty.String(),
	})
	s.notifyRoles(ctx, history.ProjectID, notify.Notification{
		Type:    notify.TypeGRNConfirmed,
		Title:   "Goods received",
		Message: fmt.Sprintf("%s %s of %s received on site", history.Qty, history.Unit, history.MaterialName),
		Data:    map[string]any{"history_id": history.ID, "request_id": history.RequestID},
	}, directory.RoleManager, directory.RoleOwner)
	return history, nil
}

// IssueInvoice regenerates the invoice for a received history. The receive
// flow issues it best effort; this is the retry path for a history whose
// issuance failed. A second invoice for the same history fails with
// shared.ErrDuplicateInvoice.
func (s *Service) IssueInvoice(ctx context.Context, historyID, actorID string) (billing.Invoice, error) {
	history, err := s.repo.Get(ctx, historyID)
	if err != nil {
		return billing.Invoice{}, err
	}
	if err := s.requireRole(ctx, history.ProjectID, actorID,
		directory.RolePurchase, directory.RoleManager, directory.RoleOwner); err != nil {
		return billing.Invoice{}, err
	}
	if history.Status != StatusReceived {
		return billing.Invoice{}, fmt.Errorf("dispatch: history %s is %s, want received: %w",
			history.ID, history.Status, shared.ErrInvalidState)
	}
	if s.invoices == nil {
		return billing.Invoice{}, fmt.Errorf("dispatch: invoice issuer not configured")
	}
	inv, err := s.invoices.Issue(ctx, invoiceInput(history, actorID))
	if err != nil {
		return billing.Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "INVOICE_ISSUE", history.ID, map[string]any{
		"invoice_id": inv.ID, "invoice_number": inv.Number,
	})
	return inv, nil
}

// Get returns one history.
func (s *Service) Get(ctx context.Context, historyID string) (PurchaseHistory, error) {
	return s.repo.Get(ctx, historyID)
}

// List returns histories for a project.
func (s *Service) List(ctx context.Context, filters ListFilters, limit, offset int) ([]PurchaseHistory, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, filters, limit, offset)
}

// gstAmount resolves the client state and computes the total GST on the base
// price. A failed project lookup falls back to the flat rate so dispatch is
// never blocked by the directory.
func (s *Service) gstAmount(ctx context.Context, projectID string, basePrice, gstRate decimal.Decimal) decimal.Decimal {
	clientState := s.cfg.SupplierState
	project, err := s.dir.Project(ctx, projectID)
	if err != nil {
		s.logWarn("project state lookup failed", slog.String("project_id", projectID), slog.Any("error", err))
	} else {
		clientState = project.State
	}
	breakup := billing.ComputeGST(basePrice, gstRate, s.cfg.SupplierState, clientState)
	return breakup.TotalGST
}

// issueInvoice creates the derived financial artifact. The physical receipt
// is the fact of record; a failed invoice is logged and may be retried
// later, it does not fail the GRN.
func (s *Service) issueInvoice(ctx context.Context, history PurchaseHistory) {
	if s.invoices == nil {
		return
	}
	_, err := s.invoices.Issue(ctx, invoiceInput(history, history.ReceivedBy))
	if err != nil {
		s.logWarn("invoice issuance failed", slog.String("history_id", history.ID), slog.Any("error", err))
	}
}

// invoiceInput copies the amounts from the history row; the invoice never
// recomputes them.
func invoiceInput(history PurchaseHistory, generatedBy string) billing.IssueInput {
	return billing.IssueInput{
		ProjectID:    history.ProjectID,
		HistoryID:    history.ID,
		MaterialID:   history.MaterialID,
		MaterialName: history.MaterialName,
		Qty:          history.Qty,
		Unit:         history.Unit,
		BasePrice:    history.BasePrice,
		GSTRate:      history.GSTRate,
		GSTAmount:    history.GSTAmount,
		TotalAmount:  history.TotalCost,
		GeneratedBy:  generatedBy,
	}
}

func (s *Service) requireRole(ctx context.Context, projectID, actorID string, roles ...directory.Role) error {
	ok, err := s.dir.HasAnyRole(ctx, projectID, actorID, roles...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispatch: %s lacks role on project %s: %w", actorID, projectID, shared.ErrForbidden)
	}
	return nil
}

func (s *Service) notifyUser(ctx context.Context, userID string, n notify.Notification) {
	if s.dispatcher == nil {
		return
	}
	n.UserID = userID
	s.dispatcher.Notify(ctx, n)
}

func (s *Service) notifyRoles(ctx context.Context, projectID string, n notify.Notification, roles ...directory.Role) {
	if s.dispatcher == nil {
		return
	}
	members, err := s.dir.MembersByRole(ctx, projectID, roles...)
	if err != nil {
		s.logWarn("notification fan-out lookup failed", slog.String("project_id", projectID), slog.Any("error", err))
		return
	}
	for _, member := range members {
		n.UserID = member.UserID
		s.dispatcher.Notify(ctx, n)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_history",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logWarn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, args...)
}
