package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/directory"
	"github.com/sitestock/sitestock/internal/notify"
	"github.com/sitestock/sitestock/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, req MaterialRequest) (MaterialRequest, error)
	Get(ctx context.Context, id string) (MaterialRequest, error)
	SetApproved(ctx context.Context, id, approverID string, at time.Time) error
	SetRejected(ctx context.Context, id, rejecterID, reason string, at time.Time) error
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]MaterialRequest, int, error)
}

// DirectoryPort resolves project roles and members.
type DirectoryPort interface {
	HasAnyRole(ctx context.Context, projectID, userID string, roles ...directory.Role) (bool, error)
	MembersByRole(ctx context.Context, projectID string, roles ...directory.Role) ([]directory.Member, error)
}

// CatalogPort resolves material master data.
type CatalogPort interface {
	Get(ctx context.Context, materialID string) (Material, error)
}

// Material is the slice of catalog data this package needs.
type Material struct {
	ID   string
	Name string
	Unit string
}

// AuditPort records lifecycle transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the request state machine and enforces who may cause each
// transition. Notification of affected users is best effort and never blocks
// a transition.
type Service struct {
	repo       RepositoryPort
	dir        DirectoryPort
	catalog    CatalogPort
	dispatcher notify.Dispatcher
	audit      AuditPort
	logger     *slog.Logger
}

// NewService constructs the request service.
func NewService(repo RepositoryPort, dir DirectoryPort, catalog CatalogPort, dispatcher notify.Dispatcher, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, dir: dir, catalog: catalog, dispatcher: dispatcher, audit: audit, logger: logger}
}

// CreateInput describes a new material request.
type CreateInput struct {
	ProjectID   string
	MaterialID  string
	Qty         decimal.Decimal
	Unit        string
	Reason      string
	RequestedBy string
}

// Create opens a new request in pending state.
func (s *Service) Create(ctx context.Context, input CreateInput) (MaterialRequest, error) {
	if strings.TrimSpace(input.ProjectID) == "" || strings.TrimSpace(input.MaterialID) == "" || strings.TrimSpace(input.RequestedBy) == "" {
		return MaterialRequest{}, fmt.Errorf("requests: project, material and requester required: %w", shared.ErrValidation)
	}
	if !input.Qty.IsPositive() {
		return MaterialRequest{}, fmt.Errorf("requests: quantity must be positive: %w", shared.ErrValidation)
	}
	member, err := s.dir.HasAnyRole(ctx, input.ProjectID, input.RequestedBy,
		directory.RoleEngineer, directory.RoleManager, directory.RoleOwner)
	if err != nil {
		return MaterialRequest{}, err
	}
	if !member {
		return MaterialRequest{}, fmt.Errorf("requests: %s cannot request on project %s: %w", input.RequestedBy, input.ProjectID, shared.ErrForbidden)
	}

	material, err := s.catalog.Get(ctx, input.MaterialID)
	if err != nil {
		return MaterialRequest{}, err
	}
	unit := input.Unit
	if unit == "" {
		unit = material.Unit
	}

	now := time.Now().UTC()
	req := MaterialRequest{
		ProjectID:    input.ProjectID,
		MaterialID:   material.ID,
		MaterialName: material.Name,
		Qty:          input.Qty,
		Unit:         unit,
		Reason:       strings.TrimSpace(input.Reason),
		RequestedBy:  input.RequestedBy,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.repo.Insert(ctx, req)
	if err != nil {
		return MaterialRequest{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "REQUEST_CREATE", created.ID, map[string]any{
		"material": created.MaterialName, "qty": created.Qty.String(),
	})
	s.notifyRoles(ctx, created.ProjectID, notify.Notification{
		Type:    notify.TypeRequestCreated,
		Title:   "New material request",
		Message: fmt.Sprintf("%s %s of %s requested", created.Qty, created.Unit, created.MaterialName),
		Data:    map[string]any{"request_id": created.ID, "project_id": created.ProjectID},
	}, directory.RoleManager, directory.RoleOwner)
	return created, nil
}

// Approve moves a pending request to approved. Only managers and owners may
// approve.
func (s *Service) Approve(ctx context.Context, requestID, actorID string) (MaterialRequest, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if err := s.requireRole(ctx, req.ProjectID, actorID, directory.RoleManager, directory.RoleOwner); err != nil {
		return MaterialRequest{}, err
	}
	if err := req.Transition(StatusApproved); err != nil {
		return MaterialRequest{}, err
	}
	now := time.Now().UTC()
	if err := s.repo.SetApproved(ctx, requestID, actorID, now); err != nil {
		return MaterialRequest{}, err
	}
	req.ApprovedBy = actorID
	req.ApprovedAt = &now
	req.UpdatedAt = now
	s.recordAudit(ctx, actorID, "REQUEST_APPROVE", req.ID, map[string]any{"material": req.MaterialName})
	s.notifyUser(ctx, req.RequestedBy, notify.Notification{
		Type:    notify.TypeRequestApproved,
		Title:   "Material request approved",
		Message: fmt.Sprintf("Your request for %s %s of %s was approved", req.Qty, req.Unit, req.MaterialName),
		Data:    map[string]any{"request_id": req.ID, "project_id": req.ProjectID},
	})
	return req, nil
}

// Reject moves a pending request to rejected. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, requestID, actorID, reason string) (MaterialRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return MaterialRequest{}, fmt.Errorf("requests: rejection reason required: %w", shared.ErrValidation)
	}
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if err := s.requireRole(ctx, req.ProjectID, actorID, directory.RoleManager, directory.RoleOwner); err != nil {
		return MaterialRequest{}, err
	}
	if err := req.Transition(StatusRejected); err != nil {
		return MaterialRequest{}, err
	}
	now := time.Now().UTC()
	if err := s.repo.SetRejected(ctx, requestID, actorID, reason, now); err != nil {
		return MaterialRequest{}, err
	}
	req.RejectedBy = actorID
	req.RejectedAt = &now
	req.RejectionReason = reason
	req.UpdatedAt = now
	s.recordAudit(ctx, actorID, "REQUEST_REJECT", req.ID, map[string]any{"reason": reason})
	s.notifyUser(ctx, req.RequestedBy, notify.Notification{
		Type:    notify.TypeRequestRejected,
		Title:   "Material request rejected",
		Message: fmt.Sprintf("Your request for %s was rejected: %s", req.MaterialName, reason),
		Data:    map[string]any{"request_id": req.ID, "project_id": req.ProjectID},
	})
	return req, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, requestID string) (MaterialRequest, error) {
	return s.repo.Get(ctx, requestID)
}

// List returns requests for a project.
func (s *Service) List(ctx context.Context, filters ListFilters, limit, offset int) ([]MaterialRequest, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, filters, limit, offset)
}

func (s *Service) requireRole(ctx context.Context, projectID, actorID string, roles ...directory.Role) error {
	ok, err := s.dir.HasAnyRole(ctx, projectID, actorID, roles...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("requests: %s lacks role on project %s: %w", actorID, projectID, shared.ErrForbidden)
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
		if s.logger != nil {
			s.logger.Warn("notification fan-out lookup failed", slog.String("project_id", projectID), slog.Any("error", err))
		}
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
		Entity:   "material_request",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
