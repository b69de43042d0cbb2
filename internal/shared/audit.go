package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded for access-control changes.
const (
	AuditRoleAssigned      = "role.assigned"
	AuditRoleRemoved       = "role.removed"
	AuditPermissionGranted = "permission.granted"
	AuditPermissionRevoked = "permission.revoked"
	AuditPermissionCreated = "permission.created"
	AuditRoleGrantAdded    = "role.permission_added"
)

// ErrInvalidAuditLog reports an entry missing its action or entity.
var ErrInvalidAuditLog = errors.New("audit log requires action/entity/entity_id")

// AuditLog represents a record stored in audit_logs. ActorID 0 marks a
// system change such as the seed command.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate checks the mandatory fields.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return ErrInvalidAuditLog
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`,
		pgtype.Int8{Int64: log.ActorID, Valid: log.ActorID > 0},
		log.Action, log.Entity, log.EntityID, metaJSON,
		pgtype.Timestamptz{Time: log.At.UTC(), Valid: !log.At.IsZero()},
	)
	return err
}
