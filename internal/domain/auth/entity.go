// internal/domain/auth/entity.go
package auth

import (
	"time"
)

// User is the identity record owned by the user-management subsystem.
// The session core only reads ID, Active and TaxID.
type User struct {
	ID           int64      `json:"id" db:"id"`
	TaxID        string     `json:"tax_id" db:"tax_id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Active       bool       `json:"active" db:"active"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty" db:"last_access_at"`
}

// SessionRecord is the persisted registry row of one browser session.
type SessionRecord struct {
	SessionID      string    `json:"-" db:"session_id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	UserAgentHash  string    `json:"user_agent_hash" db:"user_agent_hash"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	Active         bool      `json:"active" db:"active"`
	ActiveRoleID   *RoleID   `json:"active_role_id,omitempty" db:"active_role_id"`
}

// Usable reports whether the row still admits requests at now.
func (s *SessionRecord) Usable(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// Jurisdiction is the geographic boundary attached to a role grant.
// Role 1 leaves every field empty, role 2 sets RegionID, roles 3 and 5 set
// MunicipalityCode, role 4 sets FacilityCode and the facility's municipality.
type Jurisdiction struct {
	RegionID         *int64 `json:"region_id,omitempty"`
	MunicipalityCode string `json:"municipality_code,omitempty"`
	FacilityCode     string `json:"facility_code,omitempty"`
}

// RoleGrant gives a user the right to adopt a role ("profile") within a jurisdiction.
type RoleGrant struct {
	UserID       int64        `json:"user_id" db:"user_id"`
	RoleID       RoleID       `json:"role_id" db:"role_id"`
	RoleName     string       `json:"role_name" db:"role_name"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	Active       bool         `json:"active" db:"active"`
}

// Audit actions emitted by the session core.
const (
	AuditActionLogin       = "login"
	AuditActionLogout      = "logout"
	AuditActionForceLogout = "force_logout"
)

// AuditEvent is an append-only record of a session lifecycle action.
type AuditEvent struct {
	ID         string                 `json:"id" db:"id"`
	UserID     int64                  `json:"user_id" db:"user_id"`
	ActorID    int64                  `json:"actor_id" db:"actor_id"`
	Action     string                 `json:"action" db:"action"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	OccurredAt time.Time              `json:"occurred_at" db:"occurred_at"`
}
