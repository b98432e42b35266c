package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/castellan-platform/castellan/internal/users"
)

// SessionRevoker terminates every active session of a user.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID int64) error
}

// ModeratorDirectory lists the users holding the moderation action, so
// callbacks can fan out notifications about finished transitions.
type ModeratorDirectory interface {
	ModeratorUserIDs(ctx context.Context) ([]int64, error)
}

// Handlers bundles the task handlers with their dependencies.
type Handlers struct {
	logger     *slog.Logger
	sessions   SessionRevoker
	moderators ModeratorDirectory
}

// NewHandlers builds Handlers instance.
func NewHandlers(logger *slog.Logger, sessions SessionRevoker, moderators ModeratorDirectory) *Handlers {
	return &Handlers{logger: logger, sessions: sessions, moderators: moderators}
}

// HandlePasswordReset processes TaskTypePasswordReset tasks.
func (h *Handlers) HandlePasswordReset(ctx context.Context, t *asynq.Task) error {
	var payload PasswordResetPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP once the mail relay lands.
	h.logger.Info("send password reset",
		slog.Int64("user_id", payload.UserID),
		slog.String("email", payload.Email))
	return nil
}

// HandleModerationAction processes TaskTypeModerationAction tasks. Blocking
// a user also invalidates their sessions, so a blocked account stops
// working without waiting for token expiry.
func (h *Handlers) HandleModerationAction(ctx context.Context, t *asynq.Task) error {
	var payload ModerationActionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	h.logger.Info("moderation callback",
		slog.Int64("user_id", payload.UserID),
		slog.String("action", payload.Action))
	if payload.Action == users.ModerationBlock && h.sessions != nil {
		if err := h.sessions.RevokeSessions(ctx, payload.UserID); err != nil {
			return err
		}
	}
	h.notifyModerators(ctx, payload)
	return nil
}

// notifyModerators fans the finished transition out to every moderator.
// A directory failure only loses the notification, never the callback.
func (h *Handlers) notifyModerators(ctx context.Context, payload ModerationActionPayload) {
	if h.moderators == nil {
		return
	}
	ids, err := h.moderators.ModeratorUserIDs(ctx)
	if err != nil {
		h.logger.Warn("list moderators", slog.Any("error", err))
		return
	}
	// Placeholder: deliver through the mail relay once it lands.
	for _, id := range ids {
		h.logger.Info("notify moderator",
			slog.Int64("moderator_id", id),
			slog.Int64("user_id", payload.UserID),
			slog.String("action", payload.Action))
	}
}
