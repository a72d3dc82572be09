package directory

import "context"

// RepositoryPort describes lookups used by Service.
type RepositoryPort interface {
	GetProject(ctx context.Context, projectID string) (Project, error)
	GetRole(ctx context.Context, projectID, userID string) (Role, error)
	MembersByRole(ctx context.Context, projectID string, roles ...Role) ([]Member, error)
}

// Service exposes read-only directory lookups to the domain services.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the directory service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Project returns project metadata.
func (s *Service) Project(ctx context.Context, projectID string) (Project, error) {
	return s.repo.GetProject(ctx, projectID)
}

// Role resolves the membership role of a user on a project.
func (s *Service) Role(ctx context.Context, projectID, userID string) (Role, error) {
	return s.repo.GetRole(ctx, projectID, userID)
}

// HasAnyRole reports whether the user holds one of the given roles.
func (s *Service) HasAnyRole(ctx context.Context, projectID, userID string, roles ...Role) (bool, error) {
	role, err := s.repo.GetRole(ctx, projectID, userID)
	if err != nil {
		if err == ErrNotMember {
			return false, nil
		}
		return false, err
	}
	for _, candidate := range roles {
		if role == candidate {
			return true, nil
		}
	}
	return false, nil
}

// MembersByRole lists members for notification fan-out.
func (s *Service) MembersByRole(ctx context.Context, projectID string, roles ...Role) ([]Member, error) {
	return s.repo.MembersByRole(ctx, projectID, roles...)
}
