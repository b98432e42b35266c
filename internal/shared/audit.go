package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one entry in the moderation trail: who did what to which
// record.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends entries to the audit_logs table.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger builds AuditLogger instance.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists one trail entry. The timestamp defaults to now so
// callers only set At when replaying historic events.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil {
		return errors.New("audit: logger not configured")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit: action, entity and entity id are required")
	}
	occurred := entry.At
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, occurred)
	return err
}
