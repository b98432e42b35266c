package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/shared"
)

// sessionKeyPrefix matches the platform auth layer's token storage scheme.
const sessionKeyPrefix = "castellan:session:"

// SystemTokenHeader carries the shared secret trusted deployments use to
// act as the system process.
const SystemTokenHeader = "X-System-Token"

// Resolver turns bearer tokens into identities.
type Resolver struct {
	redis       *redis.Client
	pool        *pgxpool.Pool
	systemToken string
}

// NewResolver constructs a resolver.
func NewResolver(redisClient *redis.Client, pool *pgxpool.Pool, systemToken string) *Resolver {
	return &Resolver{redis: redisClient, pool: pool, systemToken: systemToken}
}

// SessionTTL bounds how long a resolved session stays valid in Redis.
const SessionTTL = 720 * time.Hour

// RegisterSession binds a token to a user id. Called by the platform's
// login flow; exposed here so the worker can also revoke sessions.
func (r *Resolver) RegisterSession(ctx context.Context, token string, userID int64) error {
	return r.redis.Set(ctx, sessionKeyPrefix+token, userID, SessionTTL).Err()
}

// RevokeSessions drops every cached session for a user, e.g. after a block.
func (r *Resolver) RevokeSessions(ctx context.Context, userID int64) error {
	iter := r.redis.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.redis.Get(ctx, key).Int64()
		if err != nil {
			continue
		}
		if val == userID {
			if err := r.redis.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}

// Resolve maps a bearer token to an identity. An unknown or expired token
// resolves to invalid credentials; an empty token to the anonymous
// identity.
func (r *Resolver) Resolve(ctx context.Context, token string) (access.Identity, error) {
	if token == "" {
		return access.AnonymousIdentity(), nil
	}
	userID, err := r.redis.Get(ctx, sessionKeyPrefix+token).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return access.Identity{}, shared.ErrInvalidCredentials
		}
		return access.Identity{}, fmt.Errorf("auth: session lookup: %w", err)
	}
	return r.identityFor(ctx, userID)
}

// ResolveSystem validates the shared system token.
func (r *Resolver) ResolveSystem(token string) (access.Identity, bool) {
	if r.systemToken == "" || token == "" || token != r.systemToken {
		return access.Identity{}, false
	}
	return access.SystemIdentity(), true
}

// identityFor loads the account's roles and granted actions and assembles
// the need set.
func (r *Resolver) identityFor(ctx context.Context, userID int64) (access.Identity, error) {
	var active, blocked bool
	err := r.pool.QueryRow(ctx, `SELECT is_active, is_blocked FROM users WHERE id = $1`, userID).Scan(&active, &blocked)
	if err != nil {
		return access.Identity{}, shared.ErrInvalidCredentials
	}
	if !active || blocked {
		return access.Identity{}, shared.ErrInvalidCredentials
	}

	needs := []access.Need{access.AnyUser, access.AuthenticatedUser, access.UserNeed(userID)}

	rows, err := r.pool.Query(ctx, `
		SELECT g.name FROM groups g
		JOIN user_roles ur ON ur.role_id = g.id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return access.Identity{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return access.Identity{}, err
		}
		needs = append(needs, access.RoleNeed(name))
	}
	if err := rows.Err(); err != nil {
		return access.Identity{}, err
	}

	actions, err := r.grantedActions(ctx, userID)
	if err != nil {
		return access.Identity{}, err
	}
	needs = append(needs, actions...)

	return access.NewIdentity(userID, needs...), nil
}

func (r *Resolver) grantedActions(ctx context.Context, userID int64) ([]access.Need, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action FROM action_users WHERE user_id = $1
		UNION
		SELECT ar.action
		FROM action_roles ar
		JOIN user_roles ur ON ur.role_id = ar.role_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var needs []access.Need
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, err
		}
		needs = append(needs, access.ActionNeed(action))
	}
	return needs, rows.Err()
}
