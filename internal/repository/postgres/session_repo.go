// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ses-portal/internal/domain/auth"
	xerrors "ses-portal/internal/pkg/errors"
)

// SessionRepository maintains the user_sessions registry used for
// force-logout, auditing and sweeping.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert registers a session keyed by session id. A conflicting row is
// refreshed but never re-activated.
func (r *SessionRepository) Upsert(ctx context.Context, s *auth.SessionRecord) error {
	query := `
		INSERT INTO user_sessions (
			session_id, user_id, ip_address, user_agent_hash,
			created_at, expires_at, last_activity_at, active, active_role_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			ip_address = EXCLUDED.ip_address,
			user_agent_hash = EXCLUDED.user_agent_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			last_activity_at = EXCLUDED.last_activity_at,
			active_role_id = EXCLUDED.active_role_id
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.UserID, s.IPAddress, s.UserAgentHash,
		s.CreatedAt, s.ExpiresAt, s.LastActivityAt, roleParam(s.ActiveRoleID),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Find retrieves a session row by id
func (r *SessionRepository) Find(ctx context.Context, sessionID string) (*auth.SessionRecord, error) {
	query := `
		SELECT session_id, user_id, ip_address, user_agent_hash,
		       created_at, expires_at, last_activity_at, active, active_role_id
		FROM user_sessions
		WHERE session_id = $1
	`
	var (
		s    auth.SessionRecord
		role sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.SessionID, &s.UserID, &s.IPAddress, &s.UserAgentHash,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.Active, &role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if role.Valid {
		id := auth.RoleID(role.Int64)
		s.ActiveRoleID = &id
	}
	return &s, nil
}

// Rekey moves an active row to a regenerated session id, keeping its
// timestamps. It reports whether a row was moved.
func (r *SessionRepository) Rekey(ctx context.Context, oldID, newID string) (bool, error) {
	query := `UPDATE user_sessions SET session_id = $1 WHERE session_id = $2 AND active`
	res, err := r.db.ExecContext(ctx, query, newID, oldID)
	if err != nil {
		return false, fmt.Errorf("failed to rekey session: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Touch bumps the last activity timestamp of an active session
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE user_sessions SET last_activity_at = $1 WHERE session_id = $2 AND active`
	_, err := r.db.ExecContext(ctx, query, at, sessionID)
	return err
}

// SetRole records the profile chosen for a session
func (r *SessionRepository) SetRole(ctx context.Context, sessionID string, roleID auth.RoleID) error {
	query := `UPDATE user_sessions SET active_role_id = $1 WHERE session_id = $2 AND active`
	_, err := r.db.ExecContext(ctx, query, int64(roleID), sessionID)
	return err
}

// Deactivate marks one session inactive
func (r *SessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	query := `UPDATE user_sessions SET active = FALSE WHERE session_id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

// DeactivateAllForUser marks every active session of a user inactive
func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE user_sessions SET active = FALSE WHERE user_id = $1 AND active`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStale removes expired or inactive rows
func (r *SessionRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM user_sessions WHERE active = FALSE OR expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return res.RowsAffected()
}

func roleParam(id *auth.RoleID) interface{} {
	if id == nil {
		return nil
	}
	return int64(*id)
}
