package groups

import (
	"context"
	"errors"
	"log/slog"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Service handles role (group) business logic. Like the users service it
// reports a lookup miss as permission denied, so callers cannot probe for
// role names they may not read.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	policy   *permissions.Policy
	searcher Searcher
	audit    *shared.AuditLogger
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Logger   *slog.Logger
	Repo     RepositoryPort
	Policy   *permissions.Policy
	Searcher Searcher
	Audit    *shared.AuditLogger
}

// NewService builds Service instance.
func NewService(p ServiceParams) *Service {
	return &Service{
		logger:   p.Logger,
		repo:     p.Repo,
		policy:   p.Policy,
		searcher: p.Searcher,
		audit:    p.Audit,
	}
}

// CreateGroupInput carries the fields accepted on group creation.
type CreateGroupInput struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1024"`
	IsManaged   bool   `json:"is_managed"`
}

// UpdateGroupInput carries the fields accepted on group update. Absent
// fields keep their stored value, so an update that only changes the
// description leaves the managed flag untouched.
type UpdateGroupInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
	IsManaged   *bool   `json:"is_managed"`
}

func (s *Service) evalContext(identity access.Identity, resource *permissions.Resource) permissions.Context {
	return permissions.Context{Identity: identity, Resource: resource}
}

// lookup loads a group by name, translating a miss into permission denied.
func (s *Service) lookup(ctx context.Context, name string) (*Group, error) {
	group, err := s.repo.GetGroupByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrPermissionDenied
		}
		return nil, err
	}
	return group, nil
}

// Create registers a new group. The permission check runs against a
// prospective resource built from the input, so protected names are
// rejected before anything is written.
func (s *Service) Create(ctx context.Context, identity access.Identity, input CreateGroupInput) (*Group, error) {
	prospective := &permissions.Resource{
		Kind:      permissions.KindGroup,
		Name:      input.Name,
		IsManaged: input.IsManaged,
	}
	if err := s.policy.Require(ctx, permissions.ActionCreate, s.evalContext(identity, prospective)); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateGroup(ctx, &Group{
		Name:        input.Name,
		Description: input.Description,
		IsManaged:   input.IsManaged,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, identity, "group.create", created.Name)
	return created, nil
}

// Read returns one group by name.
func (s *Service) Read(ctx context.Context, identity access.Identity, name string) (*Group, error) {
	group, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionRead, s.evalContext(identity, group.Resource())); err != nil {
		return nil, err
	}
	return group, nil
}

// Update changes a group's description or managed flag. Renaming is not
// supported; a name that differs from the stored one is rejected as a
// field validation error.
func (s *Service) Update(ctx context.Context, identity access.Identity, name string, input UpdateGroupInput) (*Group, error) {
	group, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionUpdate, s.evalContext(identity, group.Resource())); err != nil {
		return nil, err
	}
	if input.Name != nil && *input.Name != group.Name {
		return nil, shared.NewValidationError("name", "renaming roles is not supported")
	}
	if input.Description != nil {
		group.Description = *input.Description
	}
	if input.IsManaged != nil {
		group.IsManaged = *input.IsManaged
	}
	if err := s.repo.UpdateGroup(ctx, group); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, identity, "group.update", group.Name)
	return group, nil
}

// Delete removes a group.
func (s *Service) Delete(ctx context.Context, identity access.Identity, name string) error {
	group, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	if err := s.policy.Require(ctx, permissions.ActionDelete, s.evalContext(identity, group.Resource())); err != nil {
		return err
	}
	if err := s.repo.DeleteGroup(ctx, group.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, identity, "group.delete", group.Name)
	return nil
}

// Search lists groups the identity may see. Protected groups stay visible
// here; protection restricts mutation, not discovery.
func (s *Service) Search(ctx context.Context, identity access.Identity) ([]Group, error) {
	e := s.evalContext(identity, nil)
	if err := s.policy.Require(ctx, permissions.ActionSearch, e); err != nil {
		return nil, err
	}
	return s.searcher.SearchGroups(ctx, s.policy.QueryFilter(ctx, permissions.ActionRead, e))
}

func (s *Service) recordAudit(ctx context.Context, identity access.Identity, action, name string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  identity.ID,
		Action:   action,
		Entity:   "group",
		EntityID: name,
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
