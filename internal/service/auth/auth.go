// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/besteffort"
	"ses-portal/internal/pkg/csrf"
	xerrors "ses-portal/internal/pkg/errors"
	"ses-portal/internal/pkg/metrics"
	"ses-portal/internal/pkg/permission"
	"ses-portal/internal/pkg/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	FindByTaxID(ctx context.Context, taxID string) (*auth.User, error)
	TouchLastAccess(ctx context.Context, id int64, at time.Time) error
}

type LoginLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, taxID string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, taxID string) error
}

type Sessions interface {
	Login(ctx context.Context, prevSID string, p session.Profile, client session.ClientInfo) (*session.SessionData, error)
	AvailableRoles(ctx context.Context, userID int64) ([]auth.RoleGrant, error)
	SelectRole(ctx context.Context, sess *session.SessionData, roleID auth.RoleID) (*session.SessionData, error)
	Logout(ctx context.Context, sess *session.SessionData) error
	ForceLogout(ctx context.Context, actorID, userID int64) (int64, error)
}

type Tokens interface {
	Issue(ctx context.Context, sessionID string, scope csrf.Scope) (string, error)
	Field(ctx context.Context, sessionID string) (csrf.Field, error)
	HeaderName() string
	FieldName() string
}

type Access interface {
	Check(ctx context.Context, sess *session.SessionData, fn auth.FunctionalityID) bool
	CanModify(sess *session.SessionData) bool
	Capabilities(ctx context.Context, sess *session.SessionData) []auth.FunctionalityID
	AccessibleMunicipalities(ctx context.Context, sess *session.SessionData) []string
	SQLFilter(ctx context.Context, sess *session.SessionData, column string, firstArg int) permission.Filter
}

// dummyHash stands in for the stored hash of an unknown tax id so that both
// paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("ses-portal-unknown-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: dummy hash: %v", err))
	}
	return h
})

type AuthService struct {
	users    UserStore
	limiter  LoginLimiter
	sessions Sessions
	tokens   Tokens
	access   Access
	logger   *zap.Logger
	now      func() time.Time
	compare  func(hash, password []byte) error
	unknown  func() []byte
}

func NewAuthService(
	users UserStore,
	limiter LoginLimiter,
	sessions Sessions,
	tokens Tokens,
	access Access,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		limiter:  limiter,
		sessions: sessions,
		tokens:   tokens,
		access:   access,
		logger:   logger,
		now:      time.Now,
		compare:  bcrypt.CompareHashAndPassword,
		unknown:  dummyHash,
	}
}

// LoginResult carries the new session alongside the client-facing payload.
type LoginResult struct {
	Session  *session.SessionData
	Response *auth.LoginResponse
}

// ========== Login ==========

// Login authenticates a user by tax id and password and starts a session.
// prevSID is whatever session cookie the browser presented; it is discarded.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest, prevSID string) (*LoginResult, error) {
	taxID := auth.NormalizeTaxID(req.TaxID)
	if !auth.ValidTaxID(taxID) {
		metrics.LoginAttempts.WithLabelValues("invalid_tax_id").Inc()
		return nil, xerrors.ErrInvalidTaxID
	}

	allowed, remaining, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress, taxID)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		return nil, xerrors.ErrRateLimited
	}

	user, err := s.users.FindByTaxID(ctx, taxID)
	if errors.Is(err, xerrors.ErrNotFound) {
		_ = s.compare(s.unknown(), []byte(req.Password))
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// inactive accounts are only reported after a correct password
	if err := s.compare([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		s.logger.Info("login rejected",
			zap.Int64("user_id", user.ID),
			zap.String("ip", req.IPAddress),
			zap.Int64("attempts_remaining", remaining),
		)
		return nil, xerrors.ErrInvalidCredentials
	}
	if !user.Active {
		metrics.LoginAttempts.WithLabelValues("inactive").Inc()
		return nil, xerrors.ErrAccountInactive
	}

	sess, err := s.sessions.Login(ctx, prevSID, session.Profile{
		UserID: user.ID,
		TaxID:  user.TaxID,
		Name:   user.Name,
		Email:  user.Email,
	}, session.ClientInfo{IPAddress: req.IPAddress, UserAgent: req.UserAgent})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	if err := s.limiter.ResetLoginAttempts(ctx, req.IPAddress, taxID); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	besteffort.Do(ctx, s.logger, "user.touch_last_access", func(ctx context.Context) error {
		return s.users.TouchLastAccess(ctx, user.ID, s.now())
	}, zap.Int64("user_id", user.ID))

	roles, err := s.sessions.AvailableRoles(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to load profiles", zap.Int64("user_id", user.ID), zap.Error(err))
		roles = nil
	}

	resp := &auth.LoginResponse{
		User:      userInfo(sess),
		Profiles:  activeGrants(roles),
		ExpiresAt: sess.ExpiresAt,
	}
	if field, err := s.tokens.Field(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to issue csrf token", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		resp.CSRF = csrfResponse(field)
	}

	return &LoginResult{Session: sess, Response: resp}, nil
}

// ========== Profiles ==========

// Profiles lists the active grants the user may select.
func (s *AuthService) Profiles(ctx context.Context, sess *session.SessionData) ([]auth.RoleGrant, error) {
	if sess == nil {
		return nil, xerrors.ErrNotAuthenticated
	}
	roles, err := s.sessions.AvailableRoles(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	return activeGrants(roles), nil
}

// SelectProfile activates a granted role. The returned session carries a new id.
func (s *AuthService) SelectProfile(ctx context.Context, sess *session.SessionData, req *auth.SelectProfileRequest) (*session.SessionData, *auth.SelectProfileResponse, error) {
	roleID, err := auth.ParseRoleID(req.RoleID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidInput, err)
	}

	next, err := s.sessions.SelectRole(ctx, sess, roleID)
	if err != nil {
		return nil, nil, err
	}

	return next, &auth.SelectProfileResponse{
		Profile:      s.profileInfo(next),
		Capabilities: s.access.Capabilities(ctx, next),
	}, nil
}

// ========== Logout ==========

func (s *AuthService) Logout(ctx context.Context, sess *session.SessionData) error {
	if err := s.sessions.Logout(ctx, sess); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// ForceLogout revokes every session of userID on behalf of actor.
func (s *AuthService) ForceLogout(ctx context.Context, actor *session.SessionData, userID int64) (*auth.ForceLogoutResponse, error) {
	if !actor.HasRole() {
		return nil, xerrors.ErrNoActiveRole
	}
	if !s.access.Check(ctx, actor, auth.FuncUserManagement) || !s.access.CanModify(actor) {
		return nil, xerrors.ErrPermissionDenied
	}

	n, err := s.sessions.ForceLogout(ctx, actor.UserID, userID)
	if err != nil {
		return nil, err
	}
	return &auth.ForceLogoutResponse{UserID: userID, Revoked: n}, nil
}

// ========== Session views ==========

// Me describes the current session.
func (s *AuthService) Me(ctx context.Context, sess *session.SessionData) *auth.MeResponse {
	resp := &auth.MeResponse{
		User:         userInfo(sess),
		Capabilities: []auth.FunctionalityID{},
		LastActivity: sess.LastActivityAt,
	}
	if sess.HasRole() {
		info := s.profileInfo(sess)
		resp.Profile = &info
		resp.Capabilities = s.access.Capabilities(ctx, sess)
	}
	return resp
}

// Jurisdiction lists the municipalities visible to the session and the
// matching row filter.
func (s *AuthService) Jurisdiction(ctx context.Context, sess *session.SessionData) *auth.JurisdictionResponse {
	f := s.access.SQLFilter(ctx, sess, "municipality_code", 1)
	args := f.Args
	if args == nil {
		args = []interface{}{}
	}
	return &auth.JurisdictionResponse{
		Municipalities: s.access.AccessibleMunicipalities(ctx, sess),
		FilterClause:   f.Clause,
		FilterArgs:     args,
	}
}

// CSRFToken returns the session's global token, or a fresh single-use token
// when form is set.
func (s *AuthService) CSRFToken(ctx context.Context, sess *session.SessionData, form string) (*auth.CSRFResponse, error) {
	if sess == nil {
		return nil, xerrors.ErrNotAuthenticated
	}
	if form == "" {
		field, err := s.tokens.Field(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		return csrfResponse(field), nil
	}

	tok, err := s.tokens.Issue(ctx, sess.ID, csrf.FormScope(form))
	if err != nil {
		return nil, err
	}
	return &auth.CSRFResponse{Token: tok, HeaderName: s.tokens.HeaderName(), FieldName: s.tokens.FieldName()}, nil
}

// ========== Helpers ==========

func (s *AuthService) profileInfo(sess *session.SessionData) auth.ProfileInfo {
	return auth.ProfileInfo{
		RoleID:       sess.ActiveRole.RoleID,
		RoleName:     sess.ActiveRole.RoleName,
		Jurisdiction: sess.ActiveRole.Jurisdiction,
		CanModify:    s.access.CanModify(sess),
	}
}

func userInfo(sess *session.SessionData) auth.UserInfo {
	return auth.UserInfo{UserID: sess.UserID, Name: sess.Name, Email: sess.Email}
}

func activeGrants(grants []auth.RoleGrant) []auth.RoleGrant {
	out := make([]auth.RoleGrant, 0, len(grants))
	for _, g := range grants {
		if g.Active && g.RoleID.Valid() {
			out = append(out, g)
		}
	}
	return out
}

func csrfResponse(f csrf.Field) *auth.CSRFResponse {
	return &auth.CSRFResponse{Token: f.Token, HeaderName: f.HeaderName, FieldName: f.FieldName}
}
