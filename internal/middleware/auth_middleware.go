// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/csrf"
	"ses-portal/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const sessionContextKey = "session"

// Authenticated admits requests carrying a valid session, with or without a
// selected profile.
func (g *Gatekeeper) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.RequireAuthenticated(c.Request)
		g.writeCookies(c, d)
		if !d.Allowed {
			g.abort(c, d)
			return
		}
		c.Set(sessionContextKey, d.Session)
		c.Next()
	}
}

// WithRole admits requests whose session has an active profile.
func (g *Gatekeeper) WithRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.RequireRole(c.Request)
		g.writeCookies(c, d)
		if !d.Allowed {
			g.abort(c, d)
			return
		}
		c.Set(sessionContextKey, d.Session)
		c.Next()
	}
}

// CSRF validates the global-scope token on mutating requests.
// MUST be used after Authenticated() or WithRole()
func (g *Gatekeeper) CSRF() gin.HandlerFunc {
	return g.csrfScope(csrf.GlobalScope)
}

// FormCSRF validates a single-use token issued for the named form.
// MUST be used after Authenticated() or WithRole()
func (g *Gatekeeper) FormCSRF(form string) gin.HandlerFunc {
	return g.csrfScope(csrf.FormScope(form))
}

func (g *Gatekeeper) csrfScope(scope csrf.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.RequireCSRF(c.Request, GetSession(c), scope)
		if !d.Allowed {
			g.abort(c, d)
			return
		}
		c.Next()
	}
}

// Permission requires every listed functionality.
// MUST be used after WithRole()
func (g *Gatekeeper) Permission(fns ...auth.FunctionalityID) gin.HandlerFunc {
	return g.AllPermissions(fns...)
}

// AnyPermission requires at least one of the listed functionalities.
// MUST be used after WithRole()
func (g *Gatekeeper) AnyPermission(fns ...auth.FunctionalityID) gin.HandlerFunc {
	return g.permission(MatchAny, fns)
}

// AllPermissions requires all of the listed functionalities.
// MUST be used after WithRole()
func (g *Gatekeeper) AllPermissions(fns ...auth.FunctionalityID) gin.HandlerFunc {
	return g.permission(MatchAll, fns)
}

func (g *Gatekeeper) permission(mode Mode, fns []auth.FunctionalityID) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.RequirePermission(c.Request, GetSession(c), mode, fns...)
		if !d.Allowed {
			g.abort(c, d)
			return
		}
		c.Next()
	}
}

// CanModify blocks read-only profiles from mutating routes.
// MUST be used after WithRole()
func (g *Gatekeeper) CanModify() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.RequireModify(GetSession(c))
		if !d.Allowed {
			g.abort(c, d)
			return
		}
		c.Next()
	}
}

func (g *Gatekeeper) writeCookies(c *gin.Context, d Decision) {
	switch {
	case d.Rotated && d.Session != nil:
		http.SetCookie(c.Writer, g.sessions.Cookie(d.Session.ID))
	case d.EndSession:
		http.SetCookie(c.Writer, g.sessions.ExpiredCookie())
	}
}

func (g *Gatekeeper) abort(c *gin.Context, d Decision) {
	if d.FreshToken != "" {
		c.Header(g.tokens.HeaderName(), d.FreshToken)
	}
	response.Denied(c, d.Reason.HTTPStatus(), string(d.Reason), d.Reason.Message())
}
