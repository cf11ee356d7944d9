// internal/app/router.go
package app

import (
	"context"
	"net/http"
	"time"

	"ses-portal/internal/domain/auth"
	authHandler "ses-portal/internal/handlers/auth"
	wsHandler "ses-portal/internal/handlers/websocket"
	"ses-portal/internal/middleware"
	"ses-portal/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthCheck probes one backing store.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Handlers struct {
	AuthHandler  *authHandler.AuthHandler
	WSHandler    *wsHandler.WebSocketHandler
	Gate         *middleware.Gatekeeper
	HealthChecks []HealthCheck
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	gate := h.Gate
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", healthHandler(logger, h.HealthChecks))

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", gate.Authenticated(), h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(gate.Authenticated())
	{
		authProtected.GET("/csrf", h.AuthHandler.CSRFToken)
		authProtected.GET("/profiles", h.AuthHandler.Profiles)
		authProtected.POST("/profile", gate.CSRF(), h.AuthHandler.SelectProfile)
		authProtected.POST("/logout", gate.CSRF(), h.AuthHandler.Logout)
	}

	// ==================== Profile-bound Routes ====================
	authWithRole := api.Group("/auth")
	authWithRole.Use(gate.WithRole())
	{
		authWithRole.GET("/me", h.AuthHandler.GetMe)
		authWithRole.GET("/jurisdiction", h.AuthHandler.Jurisdiction)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(gate.WithRole())
	{
		admin.POST("/users/:id/force-logout",
			gate.CSRF(),
			gate.Permission(auth.FuncUserManagement),
			gate.CanModify(),
			h.AuthHandler.ForceLogout,
		)
		admin.GET("/realtime/stats", gate.Permission(auth.FuncSystemAudit), h.WSHandler.GetStats)
	}
}

func healthHandler(logger *zap.Logger, checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("health check failed", zap.String("dependency", check.Name), zap.Error(err))
				deps[check.Name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[check.Name] = "up"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "dependencies": deps})
	}
}
