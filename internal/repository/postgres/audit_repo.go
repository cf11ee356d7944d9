// internal/repository/postgres/audit_repo.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ses-portal/internal/domain/auth"

	"github.com/oklog/ulid/v2"
)

// AuditRepository appends session lifecycle events to audit_log.
type AuditRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

// Record inserts one audit event, assigning an id and timestamp when missing.
func (r *AuditRepository) Record(ctx context.Context, ev *auth.AuditEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now()
	}
	if ev.ID == "" {
		ev.ID = ulid.MustNew(ulid.Timestamp(ev.OccurredAt), ulid.DefaultEntropy()).String()
	}

	meta := []byte("{}")
	if len(ev.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(ev.Metadata); err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (id, user_id, actor_id, action, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, ev.ID, ev.UserID, ev.ActorID, ev.Action, meta, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}
