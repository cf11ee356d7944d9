// internal/domain/auth/dto.go
package auth

import "time"

// LoginRequest for tax-id/password login
type LoginRequest struct {
	TaxID     string `json:"tax_id" form:"tax_id" binding:"required"`
	Password  string `json:"password" form:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// SelectProfileRequest picks the active role after login
type SelectProfileRequest struct {
	RoleID string `json:"role_id" form:"role_id" binding:"required"`
}

// UserInfo minimal user information exposed to the portal
type UserInfo struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// ProfileInfo describes the active role of a session
type ProfileInfo struct {
	RoleID       RoleID       `json:"role_id"`
	RoleName     string       `json:"role_name"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	CanModify    bool         `json:"can_modify"`
}

// LoginResponse returned after a successful login
type LoginResponse struct {
	User      UserInfo    `json:"user"`
	Profiles  []RoleGrant   `json:"profiles"`
	ExpiresAt time.Time     `json:"expires_at"`
	CSRF      *CSRFResponse `json:"csrf,omitempty"`
}

// MeResponse describes the current session
type MeResponse struct {
	User         UserInfo          `json:"user"`
	Profile      *ProfileInfo      `json:"profile,omitempty"`
	Capabilities []FunctionalityID `json:"capabilities"`
	LastActivity time.Time         `json:"last_activity"`
}

// JurisdictionResponse lists what a session may see
type JurisdictionResponse struct {
	Municipalities []string      `json:"municipalities"`
	FilterClause   string        `json:"filter_clause"`
	FilterArgs     []interface{} `json:"filter_args"`
}

// SelectProfileResponse returned once a profile becomes active
type SelectProfileResponse struct {
	Profile      ProfileInfo       `json:"profile"`
	Capabilities []FunctionalityID `json:"capabilities"`
}

// ForceLogoutResponse reports how many sessions were revoked
type ForceLogoutResponse struct {
	UserID  int64 `json:"user_id"`
	Revoked int64 `json:"revoked"`
}

// CSRFResponse carries a token plus where clients must put it
type CSRFResponse struct {
	Token      string `json:"token"`
	HeaderName string `json:"header_name"`
	FieldName  string `json:"field_name"`
}
