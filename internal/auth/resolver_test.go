package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/shared"
)

func testResolver(t *testing.T, systemToken string) (*Resolver, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewResolver(client, nil, systemToken), client
}

func TestResolveEmptyTokenIsAnonymous(t *testing.T) {
	resolver, _ := testResolver(t, "secret")

	identity, err := resolver.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, identity.Provides(access.AnyUser))
	assert.False(t, identity.Provides(access.AuthenticatedUser))
}

func TestResolveUnknownTokenIsInvalid(t *testing.T) {
	resolver, _ := testResolver(t, "secret")

	_, err := resolver.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestResolveSystemToken(t *testing.T) {
	resolver, _ := testResolver(t, "secret")

	identity, ok := resolver.ResolveSystem("secret")
	require.True(t, ok)
	assert.True(t, identity.Provides(access.SystemProcess))

	_, ok = resolver.ResolveSystem("wrong")
	assert.False(t, ok)
	_, ok = resolver.ResolveSystem("")
	assert.False(t, ok)
}

func TestResolveSystemTokenDisabledWhenUnset(t *testing.T) {
	resolver, _ := testResolver(t, "")

	_, ok := resolver.ResolveSystem("")
	assert.False(t, ok)
}

func TestRevokeSessionsDropsOnlyTargetUser(t *testing.T) {
	ctx := context.Background()
	resolver, client := testResolver(t, "secret")

	require.NoError(t, resolver.RegisterSession(ctx, "tok-a", 7))
	require.NoError(t, resolver.RegisterSession(ctx, "tok-b", 7))
	require.NoError(t, resolver.RegisterSession(ctx, "tok-c", 9))

	require.NoError(t, resolver.RevokeSessions(ctx, 7))

	assert.ErrorIs(t, client.Get(ctx, sessionKeyPrefix+"tok-a").Err(), redis.Nil)
	assert.ErrorIs(t, client.Get(ctx, sessionKeyPrefix+"tok-b").Err(), redis.Nil)
	assert.NoError(t, client.Get(ctx, sessionKeyPrefix+"tok-c").Err())
}

func TestMiddlewareIdentityResolution(t *testing.T) {
	resolver, _ := testResolver(t, "secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen access.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(resolver, logger)(next)

	// No credentials proceeds anonymously.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.Provides(access.AnyUser))
	assert.False(t, seen.Provides(access.AuthenticatedUser))

	// The system token header grants the system identity.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SystemTokenHeader, "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.Provides(access.SystemProcess))

	// An unknown bearer token is rejected before the handler runs.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
