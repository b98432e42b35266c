package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Dispatcher submits jobs to the queue. It implements the task ports the
// services consume, keeping Asynq out of their signatures.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher constructs an Asynq-backed dispatcher.
func NewDispatcher(redisOpts asynq.RedisClientOpt) *Dispatcher {
	return &Dispatcher{client: asynq.NewClient(redisOpts)}
}

// EnqueuePasswordReset queues a reset email for a freshly created account.
func (d *Dispatcher) EnqueuePasswordReset(ctx context.Context, userID int64, email string) error {
	task, err := NewPasswordResetTask(PasswordResetPayload{UserID: userID, Email: email})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueModerationAction queues the post-transition callback.
func (d *Dispatcher) EnqueueModerationAction(ctx context.Context, userID int64, action string) error {
	task, err := NewModerationActionTask(ModerationActionPayload{UserID: userID, Action: action})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
