// internal/pkg/session/types.go
package session

import (
	"time"

	"ses-portal/internal/domain/auth"
)

// State is where a request's session sits in the lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticatedNoRole
	StateAuthenticatedWithRole
	StateExpired
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateAuthenticatedNoRole:
		return "authenticated_no_role"
	case StateAuthenticatedWithRole:
		return "authenticated_with_role"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unauthenticated"
	}
}

// Authenticated reports whether requests in this state are admitted.
func (s State) Authenticated() bool {
	return s == StateAuthenticatedNoRole || s == StateAuthenticatedWithRole
}

// ActiveRole is the profile chosen for a session, with its jurisdiction
// copied from the grant at selection time.
type ActiveRole struct {
	RoleID       auth.RoleID       `json:"role_id"`
	RoleName     string            `json:"role_name"`
	Jurisdiction auth.Jurisdiction `json:"jurisdiction"`
	SelectedAt   time.Time         `json:"selected_at"`
}

// SessionData is the server-side state of one browser session. It is loaded
// per request and passed explicitly to every consumer.
type SessionData struct {
	ID             string      `json:"-"`
	TrackingID     string      `json:"tracking_id"`
	UserID         int64       `json:"user_id"`
	TaxID          string      `json:"tax_id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	IPAddress      string      `json:"ip_address"`
	UserAgentHash  string      `json:"user_agent_hash"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	RegeneratedAt  time.Time   `json:"regenerated_at"`
	ActiveRole     *ActiveRole `json:"active_role,omitempty"`
	// Registered is set once the registry holds a row for ID. A registered
	// session whose row has disappeared was revoked and swept.
	Registered bool `json:"registered"`
}

// HasRole reports whether a profile has been selected.
func (s *SessionData) HasRole() bool {
	return s != nil && s.ActiveRole != nil && s.ActiveRole.RoleID.Valid()
}

// RoleID returns the active role, if any.
func (s *SessionData) RoleID() (auth.RoleID, bool) {
	if !s.HasRole() {
		return 0, false
	}
	return s.ActiveRole.RoleID, true
}

// State derives the authenticated state from the session contents.
func (s *SessionData) State() State {
	switch {
	case s == nil:
		return StateUnauthenticated
	case s.HasRole():
		return StateAuthenticatedWithRole
	default:
		return StateAuthenticatedNoRole
	}
}

func (s *SessionData) record() *auth.SessionRecord {
	rec := &auth.SessionRecord{
		SessionID:      s.ID,
		UserID:         s.UserID,
		IPAddress:      s.IPAddress,
		UserAgentHash:  s.UserAgentHash,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		Active:         true,
	}
	if id, ok := s.RoleID(); ok {
		rec.ActiveRoleID = &id
	}
	return rec
}

// Profile is the user data stored on the session at login.
type Profile struct {
	UserID int64
	TaxID  string
	Name   string
	Email  string
}

// ClientInfo is the request fingerprint.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Result is the outcome of validating a request's session identity.
// When Rotated is set, Session.ID is a new identity the caller must send back.
// TornDown is set only when the server-side session was ended; a failed store
// read leaves it false.
type Result struct {
	Session    *SessionData
	State      State
	Rotated    bool
	PreviousID string
	TornDown   bool
}

func (r Result) Authenticated() bool {
	return r.Session != nil && r.State.Authenticated()
}
