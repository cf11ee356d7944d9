// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ses-portal/internal/config"
	"ses-portal/internal/db"
	authHandler "ses-portal/internal/handlers/auth"
	wsHandler "ses-portal/internal/handlers/websocket"
	"ses-portal/internal/middleware"
	"ses-portal/internal/pkg/metrics"
	"ses-portal/internal/repository/postgres"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server
	database   *postgres.DB
	redis      *redis.Client
	cancel     context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start opens the stores, wires the session core and serves HTTP until
// Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.database = postgres.NewDB(pool)
	s.logger.Info("postgres connected")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{s.cfg.RedisAddr},
		Password:  s.cfg.RedisPass,
		DB:        s.cfg.RedisDB,
		PoolSize:  10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient
	s.logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	comps := Wire(s.cfg, s.database.SQL(), redisClient, s.logger)

	// ----- Background loops -----
	go comps.Hub.Run(ctx)
	go comps.Sessions.RunSweeper(ctx, s.cfg.SweepInterval)

	// ----- Handlers -----
	handlers := &Handlers{
		AuthHandler: authHandler.NewAuthHandler(comps.Auth, comps.Sessions, s.logger.Named("http")),
		WSHandler:   wsHandler.NewWebSocketHandler(comps.Hub, s.cfg.AppOrigin, s.logger.Named("ws")),
		Gate:        comps.Gatekeeper,
		HealthChecks: []HealthCheck{
			{Name: "postgres", Ping: s.database.SQL().PingContext},
			{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	}

	// ----- Middlewares -----
	metrics.Init()
	s.engine.Use(
		middleware.RequestID(),
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		metrics.Instrument(),
	)

	// ----- Router -----
	SetupRouter(s.engine, s.logger, handlers)

	// ----- Start HTTP -----
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, stops the background loops and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.database != nil {
		s.database.Close()
	}
	return err
}
