package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/moderation"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
)

type mockRepo struct {
	users   map[int64]*User
	nextID  int64
	updated []*User

	lastPasswordHash string
	addedGroups      [][2]int64
	removedGroups    [][2]int64
	groupMembers     map[int64][]int64

	updateErr error
}

func newMockRepo(users ...*User) *mockRepo {
	r := &mockRepo{users: make(map[int64]*User), nextID: 100}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *mockRepo) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *mockRepo) CreateUser(_ context.Context, user *User, passwordHash string) (*User, error) {
	r.nextID++
	user.ID = r.nextID
	r.lastPasswordHash = passwordHash
	r.users[user.ID] = user
	clone := *user
	return &clone, nil
}

func (r *mockRepo) UpdateUser(_ context.Context, user *User) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	clone := *user
	r.users[user.ID] = &clone
	r.updated = append(r.updated, &clone)
	return nil
}

func (r *mockRepo) ListUserGroups(_ context.Context, userID int64) ([]GroupRef, error) {
	return nil, nil
}

func (r *mockRepo) ListGroupUserIDs(_ context.Context, roleID int64) ([]int64, error) {
	return r.groupMembers[roleID], nil
}

func (r *mockRepo) AddUserGroup(_ context.Context, userID, roleID int64) (bool, error) {
	r.addedGroups = append(r.addedGroups, [2]int64{userID, roleID})
	return true, nil
}

func (r *mockRepo) RemoveUserGroup(_ context.Context, userID, roleID int64) (bool, error) {
	r.removedGroups = append(r.removedGroups, [2]int64{userID, roleID})
	return true, nil
}

type mockGroups struct {
	groups map[string]*GroupRef
}

func (g *mockGroups) ByName(_ context.Context, name string) (*GroupRef, error) {
	ref, ok := g.groups[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ref, nil
}

type captureSearcher struct {
	lastQuery search.Query
	results   []User
}

func (s *captureSearcher) SearchUsers(_ context.Context, q search.Query) ([]User, error) {
	s.lastQuery = q
	return s.results, nil
}

type recordingReindexer struct {
	ids []int64
}

func (r *recordingReindexer) ReindexUser(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return nil
}

type mockTasks struct {
	passwordResets    []int64
	moderationActions []string
	err               error
}

func (t *mockTasks) EnqueuePasswordReset(_ context.Context, userID int64, _ string) error {
	if t.err != nil {
		return t.err
	}
	t.passwordResets = append(t.passwordResets, userID)
	return nil
}

func (t *mockTasks) EnqueueModerationAction(_ context.Context, _ int64, action string) error {
	if t.err != nil {
		return t.err
	}
	t.moderationActions = append(t.moderationActions, action)
	return nil
}

type stubDirectory struct {
	userIDs []int64
	roleIDs []int64
}

func (s *stubDirectory) SuperAdminUserIDs(context.Context) ([]int64, error) {
	return s.userIDs, nil
}

func (s *stubDirectory) SuperAdminRoleIDs(context.Context) ([]int64, error) {
	return s.roleIDs, nil
}

type fixture struct {
	service   *Service
	repo      *mockRepo
	groups    *mockGroups
	searcher  *captureSearcher
	reindexer *recordingReindexer
	tasks     *mockTasks
	mutex     *moderation.Mutex
	directory *stubDirectory
}

func newFixture(t *testing.T, users ...*User) *fixture {
	t.Helper()
	cfg := permissions.Config{GroupsEnabled: true, ProtectedGroupNames: []string{"admin"}}
	f := &fixture{
		repo:      newMockRepo(users...),
		groups:    &mockGroups{groups: make(map[string]*GroupRef)},
		searcher:  &captureSearcher{},
		reindexer: &recordingReindexer{},
		tasks:     &mockTasks{},
		mutex:     moderation.NewMutex(moderation.NewMemoryLocker(), time.Minute),
		directory: &stubDirectory{},
	}
	f.service = NewService(ServiceParams{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Repo:      f.repo,
		Groups:    f.groups,
		Policy:    permissions.NewUsersPolicy(cfg, f.directory),
		Mutex:     f.mutex,
		Searcher:  f.searcher,
		Reindexer: f.reindexer,
		Tasks:     f.tasks,
	})
	return f
}

func member(id int64, extra ...access.Need) access.Identity {
	needs := append([]access.Need{access.AnyUser, access.AuthenticatedUser, access.UserNeed(id)}, extra...)
	return access.NewIdentity(id, needs...)
}

func moderator(id int64) access.Identity {
	return member(id, access.ModerationAction)
}

func account(id int64, opts ...func(*User)) *User {
	u := &User{
		ID:              id,
		Username:        "someone",
		Email:           "user@example.org",
		Active:          true,
		Confirmed:       true,
		Visibility:      permissions.VisibilityRestricted,
		EmailVisibility: permissions.VisibilityRestricted,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func TestCreateOnlySystemProcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := CreateUserInput{Username: "newbie", Email: "newbie@example.org"}

	_, err := f.service.Create(ctx, moderator(9), input)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.Empty(t, f.tasks.passwordResets)

	created, err := f.service.Create(ctx, access.SystemIdentity(), input)
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.True(t, created.Confirmed)
	assert.Equal(t, permissions.VisibilityRestricted, created.Visibility)
	assert.NotEmpty(t, f.repo.lastPasswordHash)
	assert.Equal(t, []int64{created.ID}, f.tasks.passwordResets)
}

func TestReadMissingUserIsPermissionDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Read(context.Background(), access.SystemIdentity(), 404)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestReadRedactsEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7, func(u *User) {
		u.Visibility = permissions.VisibilityPublic
	}))

	got, err := f.service.Read(ctx, member(9), 7)
	require.NoError(t, err)
	assert.Empty(t, got.Email)

	got, err = f.service.Read(ctx, member(7), 7)
	require.NoError(t, err)
	assert.Equal(t, "user@example.org", got.Email)

	got, err = f.service.Read(ctx, moderator(9), 7)
	require.NoError(t, err)
	assert.Equal(t, "user@example.org", got.Email)
}

func TestBlockTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))

	require.NoError(t, f.service.Block(ctx, moderator(9), 7))

	stored := f.repo.users[7]
	assert.True(t, stored.Blocked)
	assert.False(t, stored.Active)
	assert.Equal(t, []string{ModerationBlock}, f.tasks.moderationActions)

	// The precondition rejects a second block before touching storage.
	err := f.service.Block(ctx, moderator(9), 7)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["state"][0], "already blocked")
	assert.Len(t, f.repo.updated, 1)
}

func TestModeratorCannotModerateSelf(t *testing.T) {
	f := newFixture(t, account(9))

	err := f.service.Block(context.Background(), moderator(9), 9)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.Empty(t, f.tasks.moderationActions)
}

func TestTransitionPreconditions(t *testing.T) {
	ctx := context.Background()
	ident := moderator(9)

	t.Run("restore unblocked", func(t *testing.T) {
		f := newFixture(t, account(7))
		var verr *shared.ValidationError
		require.ErrorAs(t, f.service.Restore(ctx, ident, 7), &verr)
	})

	t.Run("approve verified", func(t *testing.T) {
		f := newFixture(t, account(7))
		var verr *shared.ValidationError
		require.ErrorAs(t, f.service.Approve(ctx, ident, 7), &verr)
	})

	t.Run("deactivate inactive", func(t *testing.T) {
		f := newFixture(t, account(7, func(u *User) { u.Active = false }))
		var verr *shared.ValidationError
		require.ErrorAs(t, f.service.Deactivate(ctx, ident, 7), &verr)
	})

	t.Run("activate active", func(t *testing.T) {
		f := newFixture(t, account(7))
		var verr *shared.ValidationError
		require.ErrorAs(t, f.service.Activate(ctx, ident, 7), &verr)
	})

	t.Run("activate unconfirmed", func(t *testing.T) {
		f := newFixture(t, account(7, func(u *User) { u.Confirmed = false }))
		require.NoError(t, f.service.Activate(ctx, ident, 7))
	})
}

func TestTransitionFailsFastWhenLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))

	require.NoError(t, f.mutex.Acquire(ctx, 7))
	defer f.mutex.Release(ctx, 7)

	err := f.service.Deactivate(ctx, moderator(9), 7)
	assert.ErrorIs(t, err, shared.ErrLockBusy)
	assert.Empty(t, f.repo.updated)
}

func TestBlockEnqueueFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))
	f.tasks.err = errors.New("broker down")

	require.NoError(t, f.service.Block(ctx, moderator(9), 7))
	assert.True(t, f.repo.users[7].Blocked)
}

func TestSearchFilterScopesVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Search(ctx, member(7))
	require.NoError(t, err)
	require.NotNil(t, f.searcher.lastQuery)

	doc := func(id int64, visibility string, active, confirmed bool) map[string]any {
		return map[string]any{
			"id":                     id,
			"active":                 active,
			"confirmed":              confirmed,
			"preferences.visibility": visibility,
		}
	}

	q := f.searcher.lastQuery
	assert.True(t, search.Matches(q, doc(1, permissions.VisibilityPublic, true, true)))
	assert.True(t, search.Matches(q, doc(7, permissions.VisibilityRestricted, true, true)))
	assert.False(t, search.Matches(q, doc(2, permissions.VisibilityRestricted, true, true)))
	assert.False(t, search.Matches(q, doc(1, permissions.VisibilityPublic, false, true)))
	assert.False(t, search.Matches(q, doc(1, permissions.VisibilityPublic, true, false)))
}

func TestSearchAllRequiresModerator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.SearchAll(ctx, member(7), nil)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = f.service.SearchAll(ctx, moderator(9), nil)
	require.NoError(t, err)
}

func TestSearchAllNarrowsToRoleMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.groups.groups["editors"] = &GroupRef{ID: 3, Name: "editors"}
	f.repo.groupMembers = map[int64][]int64{3: {1, 2}}

	_, err := f.service.SearchAll(ctx, moderator(9), []string{"editors"})
	require.NoError(t, err)

	q := f.searcher.lastQuery
	assert.True(t, search.Matches(q, map[string]any{"id": int64(1)}))
	assert.True(t, search.Matches(q, map[string]any{"id": int64(2)}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(5)}))
}

func TestSearchAllEmptyRoleMatchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.groups.groups["empty"] = &GroupRef{ID: 4, Name: "empty"}

	_, err := f.service.SearchAll(ctx, moderator(9), []string{"empty"})
	require.NoError(t, err)
	assert.False(t, search.Matches(f.searcher.lastQuery, map[string]any{"id": int64(1)}))
}

func TestSearchAllDeniesUnmanageableRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.groups.groups["root"] = &GroupRef{ID: 3, Name: "root", IsManaged: true}
	f.directory.roleIDs = []int64{3}

	_, err := f.service.SearchAll(ctx, moderator(9), []string{"root"})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	// An unknown role reads the same as a forbidden one.
	_, err = f.service.SearchAll(ctx, moderator(9), []string{"ghost"})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestImpersonate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7), account(9))

	got, err := f.service.Impersonate(ctx, moderator(9), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)

	_, err = f.service.Impersonate(ctx, moderator(9), 9)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestAddGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))
	f.groups.groups["editors"] = &GroupRef{ID: 3, Name: "editors"}

	ok, err := f.service.AddGroup(ctx, moderator(9), 7, "editors")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [][2]int64{{7, 3}}, f.repo.addedGroups)

	var verr *shared.ValidationError
	_, err = f.service.AddGroup(ctx, moderator(9), 7, "no-such-group")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["group"][0], "unknown group")

	_, err = f.service.AddGroup(ctx, member(7), 7, "editors")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestRemoveGroupUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))

	ok, err := f.service.RemoveGroup(ctx, moderator(9), 7, "no-such-group")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.repo.removedGroups)
}

func TestCommittedWritesRefreshSearchDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7))

	require.NoError(t, f.service.Block(ctx, moderator(9), 7))
	assert.Equal(t, []int64{7}, f.reindexer.ids)

	email := "changed@example.org"
	_, err := f.service.Update(ctx, moderator(9), 7, UpdateUserInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 7}, f.reindexer.ids)

	created, err := f.service.Create(ctx, access.SystemIdentity(), CreateUserInput{Username: "newbie", Email: "newbie@example.org"})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 7, created.ID}, f.reindexer.ids)

	// Rejected transitions leave the index alone.
	err = f.service.Block(ctx, moderator(9), 7)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, f.reindexer.ids, 3)
}

func TestUpdatePreservesUnsetFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, account(7, func(u *User) {
		u.FullName = "Original Name"
	}))

	email := "changed@example.org"
	got, err := f.service.Update(ctx, moderator(9), 7, UpdateUserInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "changed@example.org", got.Email)
	assert.Equal(t, "Original Name", got.FullName)
}
