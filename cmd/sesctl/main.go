package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"ses-portal/internal/app"
	"ses-portal/internal/config"
	"ses-portal/internal/db"
	"ses-portal/internal/repository/postgres"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// opener builds the session core for a single command run. The returned
// func releases the stores.
type opener func(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*app.Components, func(), error)

type runtime struct {
	cfg    config.AppConfig
	logger *zap.Logger
	comps  *app.Components
	close  func()
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[SESCTL] No .env file found, relying on system env vars")
	}

	if err := newRootCmd(openStores).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:   "sesctl",
		Short: "Operate the SES portal session store",
		Long: `sesctl runs maintenance tasks against the portal's session
stores without going through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt.cfg = config.Load()
			logger, err := newLogger(rt.cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			rt.logger = logger

			comps, closeFn, err := open(cmd.Context(), rt.cfg, logger)
			if err != nil {
				return err
			}
			rt.comps = comps
			rt.close = closeFn
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.close != nil {
				rt.close()
			}
			_ = rt.logger.Sync()
		},
	}

	rootCmd.AddCommand(
		sweepCmd(rt),
		forceLogoutCmd(rt),
	)
	return rootCmd
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStores(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*app.Components, func(), error) {
	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	database := postgres.NewDB(pool)

	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{cfg.RedisAddr},
		Password:  cfg.RedisPass,
		DB:        cfg.RedisDB,
		PoolSize:  2,
	})
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	comps := app.Wire(cfg, database.SQL(), redisClient, logger)
	return comps, func() {
		_ = redisClient.Close()
		database.Close()
	}, nil
}
