package domains

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/permissions"
	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
)

type mockRepo struct {
	byName  map[string]*Domain
	nextID  int64
	deleted []int64
}

func newMockRepo(domains ...*Domain) *mockRepo {
	r := &mockRepo{byName: make(map[string]*Domain), nextID: 100}
	for _, d := range domains {
		r.byName[d.Name] = d
	}
	return r
}

func (r *mockRepo) GetDomain(_ context.Context, name string) (*Domain, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

func (r *mockRepo) CreateDomain(_ context.Context, domain *Domain) (*Domain, error) {
	r.nextID++
	domain.ID = r.nextID
	r.byName[domain.Name] = domain
	clone := *domain
	return &clone, nil
}

func (r *mockRepo) UpdateDomain(_ context.Context, domain *Domain) error {
	clone := *domain
	r.byName[domain.Name] = &clone
	return nil
}

func (r *mockRepo) DeleteDomain(_ context.Context, id int64) error {
	r.deleted = append(r.deleted, id)
	return nil
}

type stubSearcher struct {
	lastQuery search.Query
}

func (s *stubSearcher) SearchDomains(_ context.Context, q search.Query) ([]Domain, error) {
	s.lastQuery = q
	return nil, nil
}

type stubDirectory struct{}

func (stubDirectory) SuperAdminUserIDs(context.Context) ([]int64, error) { return nil, nil }
func (stubDirectory) SuperAdminRoleIDs(context.Context) ([]int64, error) { return nil, nil }

func moderator(id int64) access.Identity {
	return access.NewIdentity(id, access.AnyUser, access.AuthenticatedUser, access.UserNeed(id), access.ModerationAction)
}

func regular(id int64) access.Identity {
	return access.NewIdentity(id, access.AnyUser, access.AuthenticatedUser, access.UserNeed(id))
}

func newTestService(domains ...*Domain) (*Service, *mockRepo) {
	repo := newMockRepo(domains...)
	svc := NewService(ServiceParams{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Repo:     repo,
		Policy:   permissions.NewDomainsPolicy(permissions.Config{}, stubDirectory{}),
		Searcher: &stubSearcher{},
	})
	return svc, repo
}

func TestDomainActionsAreModeratorOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(&Domain{ID: 1, Name: "example.org", TLD: "org", Status: StatusModerated})

	_, err := svc.Read(ctx, regular(7), "example.org")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.Search(ctx, regular(7))
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.Create(ctx, regular(7), CreateDomainInput{Domain: "spam.example"})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	got, err := svc.Read(ctx, moderator(9), "example.org")
	require.NoError(t, err)
	assert.Equal(t, "example.org", got.Name)

	_, err = svc.Read(ctx, access.SystemIdentity(), "example.org")
	require.NoError(t, err)
}

func TestCreateDomainDerivesTLDAndDefaultsStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.Create(ctx, moderator(9), CreateDomainInput{Domain: "mail.spammy.example"})
	require.NoError(t, err)
	assert.Equal(t, "example", created.TLD)
	assert.Equal(t, StatusNew, created.Status)
	assert.NotZero(t, created.ID)
}

func TestUpdateDomainModerationFields(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(&Domain{ID: 1, Name: "example.org", TLD: "org", Status: StatusNew})

	status := StatusBlocked
	flagged := true
	source := "dnsbl"
	got, err := svc.Update(ctx, moderator(9), "example.org", UpdateDomainInput{
		Status:        &status,
		Flagged:       &flagged,
		FlaggedSource: &source,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, got.Status)
	assert.True(t, got.Flagged)
	assert.Equal(t, "dnsbl", repo.byName["example.org"].FlaggedSource)
}

func TestDeleteDomain(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(&Domain{ID: 5, Name: "example.org"})

	require.NoError(t, svc.Delete(ctx, moderator(9), "example.org"))
	assert.Equal(t, []int64{5}, repo.deleted)

	err := svc.Delete(ctx, moderator(9), "ghost.example")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}
