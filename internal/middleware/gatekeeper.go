// internal/middleware/gatekeeper.go
package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/clientip"
	"ses-portal/internal/pkg/csrf"
	"ses-portal/internal/pkg/metrics"
	"ses-portal/internal/pkg/session"

	"go.uber.org/zap"
)

// Reason explains a denial to the routing layer.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonNoActiveRole     Reason = "no_active_role"
	ReasonCSRFMismatch     Reason = "csrf_mismatch"
	ReasonPermissionDenied Reason = "permission_denied"
)

// HTTPStatus maps a reason to the status the router answers with.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonNone:
		return http.StatusOK
	case ReasonNotAuthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

func (r Reason) Message() string {
	switch r {
	case ReasonNotAuthenticated:
		return "authentication required"
	case ReasonNoActiveRole:
		return "select a profile first"
	case ReasonCSRFMismatch:
		return "invalid or missing csrf token"
	case ReasonPermissionDenied:
		return "insufficient permissions"
	default:
		return ""
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Session *session.SessionData
	// Rotated means Session.ID is new and must be sent back as a cookie.
	Rotated bool
	// EndSession means the client's session cookie must be cleared.
	EndSession bool
	// FreshToken is a regenerated global CSRF token after a mismatch.
	FreshToken string
}

func allow(sess *session.SessionData) Decision {
	return Decision{Allowed: true, Session: sess}
}

func deny(reason Reason, sess *session.SessionData) Decision {
	return Decision{Reason: reason, Session: sess}
}

// Mode selects how several functionalities combine.
type Mode int

const (
	MatchAny Mode = iota
	MatchAll
)

type Sessions interface {
	Validate(ctx context.Context, sessionID string, client session.ClientInfo) session.Result
	CookieName() string
	Cookie(sessionID string) *http.Cookie
	ExpiredCookie() *http.Cookie
}

type Tokens interface {
	Issue(ctx context.Context, sessionID string, scope csrf.Scope) (string, error)
	Validate(ctx context.Context, sessionID, token string, scope csrf.Scope) bool
	HeaderName() string
	Extractor() csrf.Extractor
}

type Permissions interface {
	CheckAny(ctx context.Context, sess *session.SessionData, fns ...auth.FunctionalityID) bool
	CheckAll(ctx context.Context, sess *session.SessionData, fns ...auth.FunctionalityID) bool
	CanModify(sess *session.SessionData) bool
}

type GatekeeperConfig struct {
	// AppOrigin is scheme://host[:port]; empty disables the origin cross-check.
	AppOrigin string
	// StrictOrigin denies on a foreign Origin/Referer instead of only logging it.
	StrictOrigin bool
}

// Gatekeeper composes session validation, CSRF validation and permission
// checks into per-request admission decisions.
type Gatekeeper struct {
	sessions Sessions
	tokens   Tokens
	perms    Permissions
	cfg      GatekeeperConfig
	logger   *zap.Logger
}

func NewGatekeeper(sessions Sessions, tokens Tokens, perms Permissions, cfg GatekeeperConfig, logger *zap.Logger) *Gatekeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.AppOrigin = strings.TrimRight(cfg.AppOrigin, "/")
	return &Gatekeeper{sessions: sessions, tokens: tokens, perms: perms, cfg: cfg, logger: logger}
}

// RequireAuthenticated validates the session cookie of r.
func (g *Gatekeeper) RequireAuthenticated(r *http.Request) Decision {
	sid := g.sessionID(r)
	res := g.sessions.Validate(r.Context(), sid, ClientInfo(r))
	if !res.Authenticated() {
		d := deny(ReasonNotAuthenticated, nil)
		// a failed store read keeps the cookie; the session may still be alive
		d.EndSession = sid != "" && (res.TornDown || res.State == session.StateUnauthenticated)
		return observe("authenticated", d)
	}

	d := allow(res.Session)
	d.Rotated = res.Rotated
	return observe("authenticated", d)
}

// RequireRole is RequireAuthenticated plus a selected profile.
func (g *Gatekeeper) RequireRole(r *http.Request) Decision {
	d := g.RequireAuthenticated(r)
	if !d.Allowed {
		return d
	}
	if !d.Session.HasRole() {
		d.Allowed = false
		d.Reason = ReasonNoActiveRole
	}
	return observe("role", d)
}

// RequireCSRF validates the request's token for scope. Safe methods pass.
func (g *Gatekeeper) RequireCSRF(r *http.Request, sess *session.SessionData, scope csrf.Scope) Decision {
	if !csrf.RequiresValidation(r.Method) {
		return allow(sess)
	}
	if sess == nil {
		return observe("csrf", deny(ReasonNotAuthenticated, nil))
	}

	if !g.originAllowed(r) {
		if g.cfg.StrictOrigin {
			return observe("csrf", g.csrfMismatch(r.Context(), sess))
		}
		g.logger.Warn("cross-origin mutating request", zap.String("origin", r.Header.Get("Origin")), zap.String("path", r.URL.Path))
	}

	token := g.tokens.Extractor().Extract(r)
	if !g.tokens.Validate(r.Context(), sess.ID, token, scope) {
		return observe("csrf", g.csrfMismatch(r.Context(), sess))
	}
	return observe("csrf", allow(sess))
}

// RequirePermission checks fns against the session's active role.
func (g *Gatekeeper) RequirePermission(r *http.Request, sess *session.SessionData, mode Mode, fns ...auth.FunctionalityID) Decision {
	if sess == nil {
		return observe("permission", deny(ReasonNotAuthenticated, nil))
	}
	if !sess.HasRole() {
		return observe("permission", deny(ReasonNoActiveRole, sess))
	}

	var ok bool
	if mode == MatchAll {
		ok = g.perms.CheckAll(r.Context(), sess, fns...)
	} else {
		ok = g.perms.CheckAny(r.Context(), sess, fns...)
	}
	if !ok {
		return observe("permission", deny(ReasonPermissionDenied, sess))
	}
	return observe("permission", allow(sess))
}

// RequireModify denies read-only profiles.
func (g *Gatekeeper) RequireModify(sess *session.SessionData) Decision {
	if !sess.HasRole() {
		return observe("modify", deny(ReasonNoActiveRole, sess))
	}
	if !g.perms.CanModify(sess) {
		return observe("modify", deny(ReasonPermissionDenied, sess))
	}
	return observe("modify", allow(sess))
}

// csrfMismatch issues a fresh global token so the client can retry.
func (g *Gatekeeper) csrfMismatch(ctx context.Context, sess *session.SessionData) Decision {
	d := deny(ReasonCSRFMismatch, sess)
	tok, err := g.tokens.Issue(ctx, sess.ID, csrf.GlobalScope)
	if err != nil {
		g.logger.Warn("failed to reissue csrf token", zap.Int64("user_id", sess.UserID), zap.Error(err))
		return d
	}
	d.FreshToken = tok
	return d
}

// originAllowed compares Origin, or failing that Referer, with the app origin.
// Requests carrying neither header pass.
func (g *Gatekeeper) originAllowed(r *http.Request) bool {
	if g.cfg.AppOrigin == "" {
		return true
	}
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return strings.EqualFold(strings.TrimRight(origin, "/"), g.cfg.AppOrigin)
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		u, err := url.Parse(ref)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		return strings.EqualFold(u.Scheme+"://"+u.Host, g.cfg.AppOrigin)
	}
	return true
}

func (g *Gatekeeper) sessionID(r *http.Request) string {
	c, err := r.Cookie(g.sessions.CookieName())
	if err != nil {
		return ""
	}
	return c.Value
}

// ClientInfo builds the session fingerprint input for r.
func ClientInfo(r *http.Request) session.ClientInfo {
	return session.ClientInfo{IPAddress: clientip.FromRequest(r), UserAgent: r.UserAgent()}
}

func observe(check string, d Decision) Decision {
	label := string(d.Reason)
	if d.Allowed {
		label = "allowed"
	}
	metrics.GateDecisions.WithLabelValues(check, label).Inc()
	return d
}
