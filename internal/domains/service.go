package domains

import (
	"context"
	"errors"
	"log/slog"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Service handles email domain moderation. Every action is restricted to
// moderators and the system process, so permission checks never need a
// record snapshot.
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

// CreateDomainInput carries the fields accepted on domain creation.
type CreateDomainInput struct {
	Domain        string `json:"domain" validate:"required,fqdn"`
	Status        string `json:"status" validate:"omitempty,oneof=new moderated verified blocked"`
	Category      string `json:"category" validate:"max=255"`
	Flagged       bool   `json:"flagged"`
	FlaggedSource string `json:"flagged_source" validate:"max=255"`
}

// UpdateDomainInput carries the fields accepted on domain update.
type UpdateDomainInput struct {
	Status        *string `json:"status" validate:"omitempty,oneof=new moderated verified blocked"`
	Category      *string `json:"category" validate:"omitempty,max=255"`
	Flagged       *bool   `json:"flagged"`
	FlaggedSource *string `json:"flagged_source" validate:"omitempty,max=255"`
}

func (s *Service) require(ctx context.Context, identity access.Identity, action string) error {
	return s.policy.Require(ctx, action, permissions.Context{Identity: identity})
}

// lookup loads a domain by name, translating a miss into permission denied.
func (s *Service) lookup(ctx context.Context, name string) (*Domain, error) {
	domain, err := s.repo.GetDomain(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrPermissionDenied
		}
		return nil, err
	}
	return domain, nil
}

// Create registers a domain with a derived TLD.
func (s *Service) Create(ctx context.Context, identity access.Identity, input CreateDomainInput) (*Domain, error) {
	if err := s.require(ctx, identity, permissions.ActionCreate); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = StatusNew
	}
	created, err := s.repo.CreateDomain(ctx, &Domain{
		Name:          input.Domain,
		TLD:           DeriveTLD(input.Domain),
		Status:        status,
		Category:      input.Category,
		Flagged:       input.Flagged,
		FlaggedSource: input.FlaggedSource,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, identity, "domain.create", created.Name)
	return created, nil
}

// Read returns one domain by name.
func (s *Service) Read(ctx context.Context, identity access.Identity, name string) (*Domain, error) {
	if err := s.require(ctx, identity, permissions.ActionRead); err != nil {
		return nil, err
	}
	return s.lookup(ctx, name)
}

// Update changes a domain's moderation fields.
func (s *Service) Update(ctx context.Context, identity access.Identity, name string, input UpdateDomainInput) (*Domain, error) {
	if err := s.require(ctx, identity, permissions.ActionUpdate); err != nil {
		return nil, err
	}
	domain, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if input.Status != nil {
		domain.Status = *input.Status
	}
	if input.Category != nil {
		domain.Category = *input.Category
	}
	if input.Flagged != nil {
		domain.Flagged = *input.Flagged
	}
	if input.FlaggedSource != nil {
		domain.FlaggedSource = *input.FlaggedSource
	}
	if err := s.repo.UpdateDomain(ctx, domain); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, identity, "domain.update", domain.Name)
	return domain, nil
}

// Delete removes a domain.
func (s *Service) Delete(ctx context.Context, identity access.Identity, name string) error {
	if err := s.require(ctx, identity, permissions.ActionDelete); err != nil {
		return err
	}
	domain, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDomain(ctx, domain.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, identity, "domain.delete", domain.Name)
	return nil
}

// Search lists domains matching the read filter.
func (s *Service) Search(ctx context.Context, identity access.Identity) ([]Domain, error) {
	e := permissions.Context{Identity: identity}
	if err := s.policy.Require(ctx, permissions.ActionSearch, e); err != nil {
		return nil, err
	}
	return s.searcher.SearchDomains(ctx, s.policy.QueryFilter(ctx, permissions.ActionRead, e))
}

func (s *Service) recordAudit(ctx context.Context, identity access.Identity, action, name string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  identity.ID,
		Action:   action,
		Entity:   "domain",
		EntityID: name,
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
