// internal/pkg/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/besteffort"
	xerrors "ses-portal/internal/pkg/errors"
	"ses-portal/internal/pkg/metrics"

	"go.uber.org/zap"
)

type UserFinder interface {
	FindUser(ctx context.Context, id int64) (*auth.User, error)
}

// Registry is the relational record of sessions used for auditing,
// force-logout and sweeping.
type Registry interface {
	Upsert(ctx context.Context, rec *auth.SessionRecord) error
	Find(ctx context.Context, sessionID string) (*auth.SessionRecord, error)
	Rekey(ctx context.Context, oldID, newID string) (bool, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	SetRole(ctx context.Context, sessionID string, roleID auth.RoleID) error
	Deactivate(ctx context.Context, sessionID string) error
	DeactivateAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

type GrantReader interface {
	RoleGrants(ctx context.Context, userID int64) ([]auth.RoleGrant, error)
	RoleGrant(ctx context.Context, userID int64, roleID auth.RoleID) (*auth.RoleGrant, error)
}

type AuditSink interface {
	Record(ctx context.Context, ev *auth.AuditEvent) error
}

// TokenStore is the slice of the CSRF service the lifecycle needs.
type TokenStore interface {
	Forget(ctx context.Context, sessionID string) error
	Move(ctx context.Context, fromSessionID, toSessionID string) error
}

// Notifier pushes lifecycle notices to connected clients.
type Notifier interface {
	ForceLogout(userID int64, reason string)
	SessionEnded(userID int64, trackingID, reason string)
}

type Config struct {
	CookieName      string
	Lifetime        time.Duration
	RegenerateEvery time.Duration
	BindUserAgent   bool
	CookieSecure    bool
}

type Deps struct {
	States   StateStore
	Users    UserFinder
	Registry Registry
	Grants   GrantReader
	Audit    AuditSink
	Tokens   TokenStore
	Notifier Notifier
}

type Manager struct {
	cfg      Config
	states   StateStore
	users    UserFinder
	registry Registry
	grants   GrantReader
	audit    AuditSink
	tokens   TokenStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) *Manager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 2 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "SESPORTALSESSID"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:      cfg,
		states:   deps.States,
		users:    deps.Users,
		registry: deps.Registry,
		grants:   deps.Grants,
		audit:    deps.Audit,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		logger:   logger,
		now:      time.Now,
	}
	if m.tokens == nil {
		m.tokens = noopTokens{}
	}
	if m.notifier == nil {
		m.notifier = noopNotifier{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login starts a fresh session for an authenticated user. Any state tied to
// prevSID is discarded first.
func (m *Manager) Login(ctx context.Context, prevSID string, p Profile, client ClientInfo) (*SessionData, error) {
	if p.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", xerrors.ErrInvalidInput)
	}
	if prevSID != "" {
		m.discard(ctx, prevSID)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &SessionData{
		ID:             id,
		TrackingID:     newTrackingID(now),
		UserID:         p.UserID,
		TaxID:          p.TaxID,
		Name:           p.Name,
		Email:          p.Email,
		IPAddress:      client.IPAddress,
		UserAgentHash:  hashUserAgent(client.UserAgent),
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.Lifetime),
		LastActivityAt: now,
		RegeneratedAt:  now,
	}

	sess.Registered = m.bestEffort(ctx, "session.register", sess, func(ctx context.Context) error {
		return m.registry.Upsert(ctx, sess.record())
	}).OK()
	if err := m.states.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.recordAudit(ctx, sess, &auth.AuditEvent{
		UserID:   sess.UserID,
		ActorID:  sess.UserID,
		Action:   auth.AuditActionLogin,
		Metadata: map[string]interface{}{"ip": sess.IPAddress, "tracking_id": sess.TrackingID},
	})

	m.logger.Info("session started", sessionFields(sess)...)
	return sess, nil
}

// AvailableRoles lists the profiles the user may select.
func (m *Manager) AvailableRoles(ctx context.Context, userID int64) ([]auth.RoleGrant, error) {
	return m.grants.RoleGrants(ctx, userID)
}

// SelectRole attaches a granted profile and its jurisdiction to the session.
// The identity is regenerated because privileges change.
func (m *Manager) SelectRole(ctx context.Context, sess *SessionData, roleID auth.RoleID) (*SessionData, error) {
	if sess == nil {
		return nil, xerrors.ErrNotAuthenticated
	}
	if !roleID.Valid() {
		return nil, fmt.Errorf("%w: unknown role %d", xerrors.ErrInvalidInput, int(roleID))
	}

	grant, err := m.grants.RoleGrant(ctx, sess.UserID, roleID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrRoleNotGranted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role grant: %w", err)
	}
	if !grant.Active {
		return nil, xerrors.ErrRoleNotGranted
	}
	if err := checkJurisdiction(roleID, grant.Jurisdiction); err != nil {
		return nil, err
	}

	name := grant.RoleName
	if name == "" {
		name = roleID.String()
	}

	next := *sess
	next.ActiveRole = &ActiveRole{
		RoleID:       roleID,
		RoleName:     name,
		Jurisdiction: grant.Jurisdiction,
		SelectedAt:   m.now(),
	}
	if err := m.regenerate(ctx, &next); err != nil {
		if errors.Is(err, errRevoked) {
			m.teardown(ctx, sess, "revoked")
		}
		return nil, err
	}

	m.bestEffort(ctx, "session.set_role", &next, func(ctx context.Context) error {
		return m.registry.SetRole(ctx, next.ID, roleID)
	})

	m.logger.Info("profile selected", append(sessionFields(&next), zap.Int("role_id", int(roleID)))...)
	return &next, nil
}

// Validate resolves the session for one request. It never returns an error:
// store failures yield StateInvalid.
func (m *Manager) Validate(ctx context.Context, sessionID string, client ClientInfo) Result {
	if sessionID == "" {
		return Result{State: StateUnauthenticated}
	}

	sess, err := m.states.Load(ctx, sessionID)
	if err != nil {
		m.logger.Warn("session lookup failed", zap.String("session_id", shortID(sessionID)), zap.Error(err))
		return Result{State: StateInvalid}
	}
	if sess == nil {
		return Result{State: StateUnauthenticated}
	}

	now := m.now()
	if now.Sub(sess.LastActivityAt) > m.cfg.Lifetime || now.After(sess.ExpiresAt) {
		return m.end(ctx, sess, "expired", StateExpired)
	}

	revokedAt, err := m.states.RevokedAt(ctx, sess.UserID)
	if err != nil {
		m.logger.Warn("revocation lookup failed", append(sessionFields(sess), zap.Error(err))...)
		return Result{State: StateInvalid}
	}
	if !revokedAt.IsZero() && !sess.CreatedAt.After(revokedAt) {
		return m.end(ctx, sess, "revoked", StateInvalid)
	}

	if m.cfg.BindUserAgent && hashUserAgent(client.UserAgent) != sess.UserAgentHash {
		return m.end(ctx, sess, "fingerprint_mismatch", StateInvalid)
	}

	user, err := m.users.FindUser(ctx, sess.UserID)
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		return m.end(ctx, sess, "user_missing", StateInvalid)
	case err != nil:
		m.logger.Warn("user lookup failed", append(sessionFields(sess), zap.Error(err))...)
		return Result{State: StateInvalid}
	case !user.Active:
		return m.end(ctx, sess, "user_inactive", StateInvalid)
	}

	rec, err := m.registry.Find(ctx, sess.ID)
	switch {
	case errors.Is(err, xerrors.ErrNotFound) && sess.Registered:
		return m.end(ctx, sess, "revoked", StateInvalid)
	case errors.Is(err, xerrors.ErrNotFound):
		// never registered; the cached state stands on its own
	case err != nil:
		m.logger.Warn("session row lookup failed", append(sessionFields(sess), zap.Error(err))...)
		return Result{State: StateInvalid}
	case rec.UserID != sess.UserID || !rec.Usable(now):
		return m.end(ctx, sess, "revoked", StateInvalid)
	}

	sess.LastActivityAt = now
	res := Result{Session: sess}

	if m.cfg.RegenerateEvery > 0 && now.Sub(sess.RegeneratedAt) >= m.cfg.RegenerateEvery {
		prev := sess.ID
		err := m.regenerate(ctx, sess)
		switch {
		case errors.Is(err, errRevoked):
			return m.end(ctx, sess, "revoked", StateInvalid)
		case err != nil:
			m.logger.Warn("session regeneration failed", append(sessionFields(sess), zap.Error(err))...)
		default:
			res.Rotated = true
			res.PreviousID = prev
		}
	}
	if !res.Rotated {
		m.bestEffort(ctx, "session.save_activity", sess, func(ctx context.Context) error {
			return m.states.Save(ctx, sess)
		})
	}
	m.bestEffort(ctx, "session.touch", sess, func(ctx context.Context) error {
		return m.registry.Touch(ctx, sess.ID, now)
	})

	res.State = sess.State()
	return res
}

// Logout ends the session. Persistence failures are logged; the returned
// error only reports that cached state could not be removed.
func (m *Manager) Logout(ctx context.Context, sess *SessionData) error {
	if sess == nil {
		return nil
	}
	m.recordAudit(ctx, sess, &auth.AuditEvent{
		UserID:   sess.UserID,
		ActorID:  sess.UserID,
		Action:   auth.AuditActionLogout,
		Metadata: map[string]interface{}{"tracking_id": sess.TrackingID},
	})
	return m.teardown(ctx, sess, "logout")
}

// ForceLogout revokes every session of userID, wherever it lives.
func (m *Manager) ForceLogout(ctx context.Context, actorID, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("%w: invalid user id", xerrors.ErrInvalidInput)
	}

	if err := m.states.MarkRevoked(ctx, userID, m.now()); err != nil {
		m.logger.Error("failed to mark sessions revoked", zap.Int64("user_id", userID), zap.Error(err))
	}
	purged, err := m.states.PurgeUser(ctx, userID)
	if err != nil {
		m.logger.Error("failed to purge cached sessions", zap.Int64("user_id", userID), zap.Error(err))
	}
	for _, sid := range purged {
		sid := sid
		besteffort.Do(ctx, m.logger, "csrf.forget", func(ctx context.Context) error {
			return m.tokens.Forget(ctx, sid)
		}, zap.Int64("user_id", userID))
	}

	n, err := m.registry.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	besteffort.Do(ctx, m.logger, "audit.force_logout", func(ctx context.Context) error {
		return m.audit.Record(ctx, &auth.AuditEvent{
			UserID:   userID,
			ActorID:  actorID,
			Action:   auth.AuditActionForceLogout,
			Metadata: map[string]interface{}{"revoked": n, "cached": len(purged)},
		})
	}, zap.Int64("user_id", userID))

	metrics.SessionsEnded.WithLabelValues("force_logout").Add(float64(n))
	m.notifier.ForceLogout(userID, "force_logout")

	m.logger.Info("sessions force-logged out",
		zap.Int64("user_id", userID),
		zap.Int64("actor_id", actorID),
		zap.Int64("revoked", n),
	)
	return n, nil
}

// Sweep deletes expired and inactive session rows.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.registry.DeleteStale(ctx, m.now())
	if err != nil {
		return 0, err
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

func (m *Manager) regenerate(ctx context.Context, sess *SessionData) error {
	oldID, wasRegistered := sess.ID, sess.Registered
	newID, err := newSessionID()
	if err != nil {
		return err
	}

	// the row moves first so the new state never claims a row it lacks
	var moved bool
	rekey := m.bestEffort(ctx, "session.rekey", sess, func(ctx context.Context) error {
		var err error
		moved, err = m.registry.Rekey(ctx, oldID, newID)
		return err
	})
	if rekey.OK() && !moved && wasRegistered {
		return errRevoked
	}

	sess.ID = newID
	sess.Registered = moved
	sess.RegeneratedAt = m.now()
	if err := m.states.Replace(ctx, oldID, sess); err != nil {
		sess.ID, sess.Registered = oldID, wasRegistered
		if moved {
			m.bestEffort(ctx, "session.rekey_rollback", sess, func(ctx context.Context) error {
				_, err := m.registry.Rekey(ctx, newID, oldID)
				return err
			})
		}
		return err
	}

	m.bestEffort(ctx, "csrf.move", sess, func(ctx context.Context) error {
		return m.tokens.Move(ctx, oldID, newID)
	})
	return nil
}

// end tears the session down and reports the terminal state.
func (m *Manager) end(ctx context.Context, sess *SessionData, reason string, state State) Result {
	m.teardown(ctx, sess, reason)
	return Result{State: state, TornDown: true}
}

func (m *Manager) teardown(ctx context.Context, sess *SessionData, reason string) error {
	err := m.states.Delete(ctx, sess.ID, sess.UserID)
	if err != nil {
		m.logger.Error("failed to drop session state", append(sessionFields(sess), zap.Error(err))...)
	}

	m.bestEffort(ctx, "csrf.forget", sess, func(ctx context.Context) error {
		return m.tokens.Forget(ctx, sess.ID)
	})
	m.bestEffort(ctx, "session.deactivate", sess, func(ctx context.Context) error {
		return m.registry.Deactivate(ctx, sess.ID)
	})

	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	m.notifier.SessionEnded(sess.UserID, sess.TrackingID, reason)
	m.logger.Info("session ended", append(sessionFields(sess), zap.String("reason", reason))...)
	return err
}

// discard drops whatever a previous identity left behind on this browser.
func (m *Manager) discard(ctx context.Context, sessionID string) {
	prev, err := m.states.Load(ctx, sessionID)
	if err != nil || prev == nil {
		prev = &SessionData{ID: sessionID}
	}
	m.teardown(ctx, prev, "replaced")
}

func (m *Manager) recordAudit(ctx context.Context, sess *SessionData, ev *auth.AuditEvent) {
	m.bestEffort(ctx, "audit."+ev.Action, sess, func(ctx context.Context) error {
		return m.audit.Record(ctx, ev)
	})
}

func (m *Manager) bestEffort(ctx context.Context, op string, sess *SessionData, fn func(context.Context) error) besteffort.Result {
	return besteffort.Do(ctx, m.logger, op, fn, sessionFields(sess)...)
}

// checkJurisdiction enforces that a grant carries the scope its role needs.
func checkJurisdiction(roleID auth.RoleID, j auth.Jurisdiction) error {
	ok := true
	switch roleID {
	case auth.RoleRegionalManager:
		ok = j.RegionID != nil
	case auth.RoleMunicipalManager, auth.RoleAuditor:
		ok = auth.ValidMunicipalityCode(j.MunicipalityCode)
	case auth.RoleMunicipalTechnician:
		ok = auth.ValidFacilityCode(j.FacilityCode) && auth.ValidMunicipalityCode(j.MunicipalityCode)
	}
	if !ok {
		return fmt.Errorf("%w: grant for %s has no usable jurisdiction", xerrors.ErrRoleNotGranted, roleID)
	}
	return nil
}

func sessionFields(sess *SessionData) []zap.Field {
	if sess == nil {
		return nil
	}
	return []zap.Field{
		zap.Int64("user_id", sess.UserID),
		zap.String("session_id", shortID(sess.ID)),
		zap.String("tracking_id", sess.TrackingID),
	}
}

var errRevoked = fmt.Errorf("%w: session row revoked", xerrors.ErrNotAuthenticated)

type noopTokens struct{}

func (noopTokens) Forget(context.Context, string) error       { return nil }
func (noopTokens) Move(context.Context, string, string) error { return nil }

type noopNotifier struct{}

func (noopNotifier) ForceLogout(int64, string)           {}
func (noopNotifier) SessionEnded(int64, string, string) {}
