// internal/middleware/helpers.go
package middleware

import (
	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

// GetSession returns the session admitted for this request, or nil.
func GetSession(c *gin.Context) *session.SessionData {
	v, exists := c.Get(sessionContextKey)
	if !exists {
		return nil
	}
	sess, _ := v.(*session.SessionData)
	return sess
}

// MustGetSession gets the session from context or panics
func MustGetSession(c *gin.Context) *session.SessionData {
	sess := GetSession(c)
	if sess == nil {
		panic("session not found in context")
	}
	return sess
}

// GetUserID gets the authenticated user id from context
func GetUserID(c *gin.Context) (int64, bool) {
	sess := GetSession(c)
	if sess == nil {
		return 0, false
	}
	return sess.UserID, true
}

// GetActiveRole gets the selected profile from context
func GetActiveRole(c *gin.Context) (auth.RoleID, bool) {
	return GetSession(c).RoleID()
}

// GetRequestID gets the request id assigned by RequestID()
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
