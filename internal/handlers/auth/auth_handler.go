// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"
	"strconv"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/middleware"
	xerrors "ses-portal/internal/pkg/errors"
	"ses-portal/internal/pkg/response"
	authUsecase "ses-portal/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CookieJar builds the session cookies the handler hands back.
type CookieJar interface {
	CookieName() string
	Cookie(sessionID string) *http.Cookie
	ExpiredCookie() *http.Cookie
}

type AuthHandler struct {
	authService *authUsecase.AuthService
	cookies     CookieJar
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, cookies CookieJar, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// ========== Login ==========

// Login handles tax-id/password login (public endpoint)
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	client := middleware.ClientInfo(c.Request)
	req.IPAddress = client.IPAddress
	req.UserAgent = client.UserAgent

	var prevSID string
	if ck, err := c.Cookie(h.cookies.CookieName()); err == nil {
		prevSID = ck
	}

	res, err := h.authService.Login(c.Request.Context(), &req, prevSID)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		h.fail(c, "login failed", err)
		return
	}

	http.SetCookie(c.Writer, h.cookies.Cookie(res.Session.ID))

	h.logger.Info("user logged in",
		zap.Int64("user_id", res.Session.UserID),
		zap.String("tracking_id", res.Session.TrackingID),
	)
	response.Success(c, http.StatusOK, "login successful", res.Response)
}

// ========== CSRF ==========

// CSRFToken returns the global token, or a single-use one with ?form=<name>
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	tok, err := h.authService.CSRFToken(c.Request.Context(), middleware.GetSession(c), c.Query("form"))
	if err != nil {
		h.fail(c, "failed to issue csrf token", err)
		return
	}
	response.Success(c, http.StatusOK, "csrf token issued", tok)
}

// ========== Profiles ==========

// Profiles lists the profiles the user may select
func (h *AuthHandler) Profiles(c *gin.Context) {
	grants, err := h.authService.Profiles(c.Request.Context(), middleware.GetSession(c))
	if err != nil {
		h.fail(c, "failed to load profiles", err)
		return
	}
	response.Success(c, http.StatusOK, "profiles retrieved", grants)
}

// SelectProfile activates one of the user's profiles
func (h *AuthHandler) SelectProfile(c *gin.Context) {
	var req auth.SelectProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	sess := middleware.MustGetSession(c)
	next, resp, err := h.authService.SelectProfile(c.Request.Context(), sess, &req)
	if err != nil {
		h.logger.Warn("profile selection failed",
			zap.Int64("user_id", sess.UserID),
			zap.String("role_id", req.RoleID),
			zap.Error(err),
		)
		h.fail(c, "profile selection failed", err)
		return
	}

	http.SetCookie(c.Writer, h.cookies.Cookie(next.ID))
	response.Success(c, http.StatusOK, "profile selected", resp)
}

// ========== Logout ==========

// Logout ends the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := middleware.MustGetSession(c)

	err := h.authService.Logout(c.Request.Context(), sess)
	http.SetCookie(c.Writer, h.cookies.ExpiredCookie())
	if err != nil {
		h.logger.Error("logout failed", zap.Int64("user_id", sess.UserID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "logout failed", nil)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// ========== Session views ==========

// GetMe returns the current user and active profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	response.Success(c, http.StatusOK, "session retrieved", h.authService.Me(c.Request.Context(), middleware.MustGetSession(c)))
}

// Jurisdiction returns the municipalities the active profile may see
func (h *AuthHandler) Jurisdiction(c *gin.Context) {
	resp := h.authService.Jurisdiction(c.Request.Context(), middleware.MustGetSession(c))
	response.Success(c, http.StatusOK, "jurisdiction retrieved", resp)
}

// ========== Admin ==========

// ForceLogout revokes every session of the user in :id
func (h *AuthHandler) ForceLogout(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	actor := middleware.MustGetSession(c)
	resp, err := h.authService.ForceLogout(c.Request.Context(), actor, userID)
	if err != nil {
		h.logger.Error("force logout failed",
			zap.Int64("actor_id", actor.UserID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		h.fail(c, "force logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions revoked", resp)
}

// fail maps service errors onto statuses. Internal causes are never echoed.
func (h *AuthHandler) fail(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		response.Error(c, status, message, nil)
		return
	}
	response.Error(c, status, message, publicError(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrInvalidTaxID), errors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, xerrors.ErrInvalidCredentials),
		errors.Is(err, xerrors.ErrAccountInactive),
		errors.Is(err, xerrors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrRoleNotGranted),
		errors.Is(err, xerrors.ErrNoActiveRole),
		errors.Is(err, xerrors.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// publicError reduces err to the sentinel the client is allowed to see.
func publicError(err error) error {
	for _, sentinel := range []error{
		xerrors.ErrInvalidTaxID,
		xerrors.ErrRateLimited,
		xerrors.ErrInvalidCredentials,
		xerrors.ErrAccountInactive,
		xerrors.ErrNotAuthenticated,
		xerrors.ErrRoleNotGranted,
		xerrors.ErrNoActiveRole,
		xerrors.ErrPermissionDenied,
		xerrors.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
