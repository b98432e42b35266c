package users

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/moderation"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Moderation action names attached to post-transition callbacks.
const (
	ModerationBlock   = "block"
	ModerationRestore = "restore"
	ModerationApprove = "approve"
)

// Service handles user account business logic. Authorization decisions go
// through the users policy; record lookups that miss are surfaced as
// permission denied so responses never reveal whether an account exists.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	groups GroupLookup

	policy    *permissions.Policy
	mutex     *moderation.Mutex
	searcher  Searcher
	reindexer Reindexer
	tasks     Tasks
	audit     *shared.AuditLogger
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Logger    *slog.Logger
	Repo      RepositoryPort
	Groups    GroupLookup
	Policy    *permissions.Policy
	Mutex     *moderation.Mutex
	Searcher  Searcher
	Reindexer Reindexer
	Tasks     Tasks
	Audit     *shared.AuditLogger
}

// NewService builds Service instance.
func NewService(p ServiceParams) *Service {
	return &Service{
		logger:    p.Logger,
		repo:      p.Repo,
		groups:    p.Groups,
		policy:    p.Policy,
		mutex:     p.Mutex,
		searcher:  p.Searcher,
		reindexer: p.Reindexer,
		tasks:     p.Tasks,
		audit:     p.Audit,
	}
}

// CreateUserInput carries the fields accepted on account creation.
type CreateUserInput struct {
	Username        string `json:"username" validate:"required,min=3,max=255"`
	Email           string `json:"email" validate:"required,email"`
	FullName        string `json:"full_name" validate:"max=255"`
	Visibility      string `json:"visibility" validate:"omitempty,oneof=public restricted"`
	EmailVisibility string `json:"email_visibility" validate:"omitempty,oneof=public restricted"`
}

// UpdateUserInput carries the fields accepted on account update.
type UpdateUserInput struct {
	Email           *string `json:"email" validate:"omitempty,email"`
	FullName        *string `json:"full_name" validate:"omitempty,max=255"`
	Visibility      *string `json:"visibility" validate:"omitempty,oneof=public restricted"`
	EmailVisibility *string `json:"email_visibility" validate:"omitempty,oneof=public restricted"`
}

func (s *Service) evalContext(identity access.Identity, resource *permissions.Resource) permissions.Context {
	return permissions.Context{Identity: identity, Resource: resource}
}

// evalContextActor is used for actions that must distinguish the acting
// user, such as self-action prevention.
func (s *Service) evalContextActor(identity access.Identity, resource *permissions.Resource) permissions.Context {
	actorID := identity.ID
	return permissions.Context{Identity: identity, Resource: resource, ActorID: &actorID}
}

// lookup loads a user, translating a miss into permission denied.
func (s *Service) lookup(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrPermissionDenied
		}
		return nil, err
	}
	return user, nil
}

// Create provisions an active, verified account with a generated password
// and queues the password-reset email. Only the system process may call it.
func (s *Service) Create(ctx context.Context, identity access.Identity, input CreateUserInput) (*User, error) {
	if err := s.policy.Require(ctx, permissions.ActionCreate, s.evalContext(identity, nil)); err != nil {
		return nil, err
	}

	password, err := generatePassword(12)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:        input.Username,
		Email:           input.Email,
		FullName:        input.FullName,
		Active:          true,
		Confirmed:       true,
		Visibility:      defaultVisibility(input.Visibility),
		EmailVisibility: defaultVisibility(input.EmailVisibility),
	}
	created, err := s.repo.CreateUser(ctx, user, string(hash))
	if err != nil {
		return nil, err
	}

	s.reindex(ctx, created.ID)

	if err := s.tasks.EnqueuePasswordReset(ctx, created.ID, created.Email); err != nil {
		s.logger.Error("enqueue password reset", slog.Int64("user_id", created.ID), slog.Any("error", err))
	}
	return created, nil
}

// reindex refreshes the account's search document after a committed write.
// Failures are logged and left to the periodic full reindex to repair.
func (s *Service) reindex(ctx context.Context, id int64) {
	if s.reindexer == nil {
		return
	}
	if err := s.reindexer.ReindexUser(ctx, id); err != nil {
		s.logger.Warn("reindex user", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

// Read retrieves a user the identity may see.
func (s *Service) Read(ctx context.Context, identity access.Identity, id int64) (*User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionRead, s.evalContext(identity, user.Resource())); err != nil {
		return nil, err
	}
	if !s.policy.Allows(ctx, permissions.ActionReadEmail, s.evalContext(identity, user.Resource())) {
		redacted := *user
		redacted.Email = ""
		return &redacted, nil
	}
	return user, nil
}

// ReadAvatar returns avatar metadata, guarded like a read.
func (s *Service) ReadAvatar(ctx context.Context, identity access.Identity, id int64) (Avatar, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return Avatar{}, err
	}
	if err := s.policy.Require(ctx, permissions.ActionRead, s.evalContext(identity, user.Resource())); err != nil {
		return Avatar{}, err
	}
	return AvatarFor(user.Username, user.ID), nil
}

// Update applies profile changes. The manage action both gates moderators
// and prevents self-editing.
func (s *Service) Update(ctx context.Context, identity access.Identity, id int64, input UpdateUserInput) (*User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionManage, s.evalContextActor(identity, user.Resource())); err != nil {
		return nil, err
	}

	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.FullName != nil {
		user.FullName = *input.FullName
	}
	if input.Visibility != nil {
		user.Visibility = *input.Visibility
	}
	if input.EmailVisibility != nil {
		user.EmailVisibility = *input.EmailVisibility
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.reindex(ctx, user.ID)
	return user, nil
}

// Search lists active, confirmed users the identity may see. The policy
// filter for the read action is combined with the base state filter and
// handed to the search backend verbatim.
func (s *Service) Search(ctx context.Context, identity access.Identity) ([]User, error) {
	e := s.evalContext(identity, nil)
	if err := s.policy.Require(ctx, permissions.ActionSearch, e); err != nil {
		return nil, err
	}
	filter := search.And(
		s.policy.QueryFilter(ctx, permissions.ActionRead, e),
		search.Term{Field: "active", Value: true},
		search.Term{Field: "confirmed", Value: true},
	)
	return s.searcher.SearchUsers(ctx, filter)
}

// SearchAll lists every user, without the active/confirmed restriction.
// Reserved for moderators and the system process. When role names are
// given, results narrow to members of those roles; each requested role
// must be one the identity may manage.
func (s *Service) SearchAll(ctx context.Context, identity access.Identity, roles []string) ([]User, error) {
	e := s.evalContext(identity, nil)
	if err := s.policy.Require(ctx, permissions.ActionSearchAll, e); err != nil {
		return nil, err
	}
	filter := s.policy.QueryFilter(ctx, permissions.ActionReadAll, e)
	if len(roles) > 0 {
		rolesFilter, err := s.rolesFilter(ctx, identity, roles)
		if err != nil {
			return nil, err
		}
		filter = search.And(filter, rolesFilter)
	}
	return s.searcher.SearchUsers(ctx, filter)
}

// rolesFilter narrows a search to members of the requested roles. Asking
// for a role the identity may not manage is denied outright, and an
// unknown role reads the same as a forbidden one. Permitted roles with no
// members match nothing instead of degrading to an unconstrained search.
func (s *Service) rolesFilter(ctx context.Context, identity access.Identity, roles []string) (search.Query, error) {
	seen := make(map[int64]struct{})
	var memberIDs []any
	for _, name := range roles {
		group, err := s.groups.ByName(ctx, name)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.ErrPermissionDenied
			}
			return nil, err
		}
		if err := s.policy.Require(ctx, permissions.ActionManageGroups, s.evalContext(identity, group.Resource())); err != nil {
			return nil, err
		}
		ids, err := s.repo.ListGroupUserIDs(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			memberIDs = append(memberIDs, id)
		}
	}
	if len(memberIDs) == 0 {
		return search.MatchNone{}, nil
	}
	return search.Terms{Field: "id", Values: memberIDs}, nil
}

// Block moves a user into the blocked state.
func (s *Service) Block(ctx context.Context, identity access.Identity, id int64) error {
	return s.transition(ctx, identity, id, ModerationBlock, func(user *User) error {
		if user.Blocked {
			return shared.NewValidationError("state", "user is already blocked")
		}
		user.Blocked = true
		user.Active = false
		return nil
	})
}

// Restore moves a blocked user back to the active state.
func (s *Service) Restore(ctx context.Context, identity access.Identity, id int64) error {
	return s.transition(ctx, identity, id, ModerationRestore, func(user *User) error {
		if !user.Blocked {
			return shared.NewValidationError("state", "user is not blocked")
		}
		user.Blocked = false
		user.Active = true
		return nil
	})
}

// Approve confirms a pending user.
func (s *Service) Approve(ctx context.Context, identity access.Identity, id int64) error {
	return s.transition(ctx, identity, id, ModerationApprove, func(user *User) error {
		if user.Confirmed {
			return shared.NewValidationError("state", "user is already verified")
		}
		user.Confirmed = true
		user.Active = true
		return nil
	})
}

// Deactivate clears the active flag.
func (s *Service) Deactivate(ctx context.Context, identity access.Identity, id int64) error {
	return s.transition(ctx, identity, id, "deactivate", func(user *User) error {
		if !user.Active {
			return shared.NewValidationError("state", "user is already inactive")
		}
		user.Active = false
		return nil
	})
}

// Activate sets the active flag.
func (s *Service) Activate(ctx context.Context, identity access.Identity, id int64) error {
	return s.transition(ctx, identity, id, "activate", func(user *User) error {
		if user.Active && user.Confirmed {
			return shared.NewValidationError("state", "user is already active")
		}
		user.Active = true
		return nil
	})
}

// transition runs one moderation state change: permission check, mutex
// acquire, precondition + mutation, commit, async callback. The mutex makes
// competing transitions on the same user fail fast instead of racing.
func (s *Service) transition(ctx context.Context, identity access.Identity, id int64, action string, mutate func(*User) error) error {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Require(ctx, permissions.ActionManage, s.evalContextActor(identity, user.Resource())); err != nil {
		return err
	}

	if err := s.mutex.Acquire(ctx, id); err != nil {
		return err
	}
	defer func() {
		if err := s.mutex.Release(ctx, id); err != nil {
			s.logger.Warn("release moderation lock", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}()

	if err := mutate(user); err != nil {
		return err
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.reindex(ctx, user.ID)
	s.recordAudit(ctx, identity, action, user.ID)

	if err := s.tasks.EnqueueModerationAction(ctx, user.ID, action); err != nil {
		s.logger.Error("enqueue moderation action", slog.Int64("user_id", user.ID), slog.String("action", action), slog.Any("error", err))
	}
	return nil
}

// Impersonate checks whether the identity may impersonate the user and
// returns the account on success.
func (s *Service) Impersonate(ctx context.Context, identity access.Identity, id int64) (*User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionImpersonate, s.evalContextActor(identity, user.Resource())); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, identity, "impersonate", user.ID)
	return user, nil
}

// AddGroup assigns a group to the user. The identity must hold
// manage_groups both for the user and for the target group.
func (s *Service) AddGroup(ctx context.Context, identity access.Identity, id int64, groupName string) (bool, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.policy.Require(ctx, permissions.ActionManageGroups, s.evalContextActor(identity, user.Resource())); err != nil {
		return false, err
	}

	group, err := s.groups.ByName(ctx, groupName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, shared.NewValidationError("group", "unknown group")
		}
		return false, err
	}
	if err := s.policy.Require(ctx, permissions.ActionManageGroups, s.evalContext(identity, group.Resource())); err != nil {
		return false, err
	}
	return s.repo.AddUserGroup(ctx, user.ID, group.ID)
}

// RemoveGroup removes a group from the user.
func (s *Service) RemoveGroup(ctx context.Context, identity access.Identity, id int64, groupName string) (bool, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.policy.Require(ctx, permissions.ActionManageGroups, s.evalContextActor(identity, user.Resource())); err != nil {
		return false, err
	}

	group, err := s.groups.ByName(ctx, groupName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.policy.Require(ctx, permissions.ActionManageGroups, s.evalContext(identity, group.Resource())); err != nil {
		return false, err
	}
	return s.repo.RemoveUserGroup(ctx, user.ID, group.ID)
}

// ListGroups returns the groups assigned to a user the identity may read.
func (s *Service) ListGroups(ctx context.Context, identity access.Identity, id int64) ([]GroupRef, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Require(ctx, permissions.ActionRead, s.evalContext(identity, user.Resource())); err != nil {
		return nil, err
	}
	return s.repo.ListUserGroups(ctx, user.ID)
}

func (s *Service) recordAudit(ctx context.Context, identity access.Identity, action string, userID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  identity.ID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func defaultVisibility(v string) string {
	if v == "" {
		return permissions.VisibilityRestricted
	}
	return v
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generatePassword(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
