package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePasswordReset is the task type for password-reset emails.
	TaskTypePasswordReset = "mail:password_reset"
	// TaskTypeModerationAction is the task type for post-moderation callbacks.
	TaskTypeModerationAction = "moderation:action"
)

// PasswordResetPayload carries the minimum needed to send a reset email.
type PasswordResetPayload struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// ModerationActionPayload identifies a finished moderation transition.
// Handlers run after the state change is committed, so a crashed worker
// can safely retry against current state.
type ModerationActionPayload struct {
	UserID int64  `json:"user_id"`
	Action string `json:"action"`
}

// NewPasswordResetTask constructs an Asynq task.
func NewPasswordResetTask(payload PasswordResetPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePasswordReset, data), nil
}

// NewModerationActionTask constructs an Asynq task.
func NewModerationActionTask(payload ModerationActionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeModerationAction, data), nil
}
