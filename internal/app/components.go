// internal/app/components.go
package app

import (
	"database/sql"

	"ses-portal/internal/config"
	"ses-portal/internal/middleware"
	"ses-portal/internal/pkg/csrf"
	"ses-portal/internal/pkg/permission"
	"ses-portal/internal/pkg/session"
	"ses-portal/internal/repository/postgres"
	authUsecase "ses-portal/internal/service/auth"
	"ses-portal/internal/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Components is the wired session core, shared by the API server and sesctl.
type Components struct {
	Sessions   *session.Manager
	Tokens     *csrf.Service
	Resolver   *permission.Resolver
	Limiter    *session.RateLimiter
	Hub        *websocket.Hub
	Gatekeeper *middleware.Gatekeeper
	Auth       *authUsecase.AuthService
}

// Wire builds every component on top of already-open stores.
func Wire(cfg config.AppConfig, sqlDB *sql.DB, rdb *redis.Client, logger *zap.Logger) *Components {
	// ----- Repositories -----
	userRepo := postgres.NewUserRepository(sqlDB)
	sessionRepo := postgres.NewSessionRepository(sqlDB)
	grantRepo := postgres.NewGrantRepository(sqlDB)
	placeRepo := postgres.NewJurisdictionRepository(sqlDB)
	auditRepo := postgres.NewAuditRepository(sqlDB)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(logger.Named("realtime"))

	// ----- Token Service -----
	tokens := csrf.NewService(csrf.NewRedisStore(rdb), csrf.Config{
		MaxAge:     cfg.CSRF.MaxAge,
		HeaderName: cfg.CSRF.HeaderName,
		FieldName:  cfg.CSRF.FieldName,
	}, logger.Named("csrf"))

	// ----- Session Manager & Rate Limiter -----
	sessions := session.NewManager(session.Config{
		CookieName:      cfg.Session.CookieName,
		Lifetime:        cfg.Session.Lifetime,
		RegenerateEvery: cfg.Session.RegenerateEvery,
		BindUserAgent:   cfg.Session.BindUserAgent,
		CookieSecure:    cfg.Session.CookieSecure,
	}, session.Deps{
		States:   session.NewRedisStateStore(rdb, cfg.Session.Lifetime),
		Users:    userRepo,
		Registry: sessionRepo,
		Grants:   grantRepo,
		Audit:    auditRepo,
		Tokens:   tokens,
		Notifier: hub,
	}, logger.Named("session"))
	limiter := session.NewRateLimiter(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)

	// ----- Permission Resolver -----
	resolver := permission.NewResolver(grantRepo, placeRepo, logger.Named("permission"))

	// ----- Gatekeeper -----
	gate := middleware.NewGatekeeper(sessions, tokens, resolver, middleware.GatekeeperConfig{
		AppOrigin:    cfg.AppOrigin,
		StrictOrigin: cfg.CSRF.StrictOrigin,
	}, logger.Named("gatekeeper"))

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(userRepo, limiter, sessions, tokens, resolver, logger.Named("auth"))

	return &Components{
		Sessions:   sessions,
		Tokens:     tokens,
		Resolver:   resolver,
		Limiter:    limiter,
		Hub:        hub,
		Gatekeeper: gate,
		Auth:       authService,
	}
}
