package session

import "net/http"

// CookieName is the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Cookie builds the session cookie. It has no Max-Age so it lives for the
// browser session only.
func (m *Manager) Cookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredCookie tells the browser to drop the session cookie.
func (m *Manager) ExpiredCookie() *http.Cookie {
	c := m.Cookie("")
	c.MaxAge = -1
	return c
}
