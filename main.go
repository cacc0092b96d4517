package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"floraGuardAPI/internal/config"
	"floraGuardAPI/internal/migrations"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/services"
)

func init() {
	config.LoadDotenv()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	appLog, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer appLog.Sync()

	app := &cli.App{
		Name:  "floraguard",
		Usage: "plant care gamification API",
		Commands: []*cli.Command{
			commandServer(cfg, appLog),
			commandMigrate(cfg, appLog),
			commandSeedCatalog(cfg, appLog),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Fatal("command failed", "error", err)
	}
}

func commandMigrate(cfg *config.Config, appLog *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending database migrations",
		Action: func(c *cli.Context) error {
			pool, err := openPool(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(c.Context, pool)
			if err != nil {
				return err
			}
			appLog.Info("migrations applied", "versions", applied)
			return nil
		},
	}
}

func commandSeedCatalog(cfg *config.Config, appLog *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "seed-catalog",
		Usage: "write the bundled achievement catalog to the database",
		Action: func(c *cli.Context) error {
			pool, err := openPool(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := services.NewCatalogService(services.NewPostgresStore(pool), nil, cfg.CatalogCacheTTL, appLog)
			n, err := catalog.Seed(c.Context)
			if err != nil {
				return err
			}
			appLog.Info("achievement catalog seeded", "definitions", n)
			return nil
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, fmt.Errorf("STORE_DRIVER %q has no database", cfg.StoreDriver)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func openRedis(cfg *config.Config) (redis.UniversalClient, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	rdb, err := db.InitRedis(&db.RedisConfig{URL: cfg.RedisURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initClerk(cfg *config.Config, appLog *logger.Logger) {
	if cfg.ClerkSecretKey == "" {
		appLog.Warn("CLERK_SECRET_KEY not set, authenticated routes will reject every request")
		return
	}
	clerk.SetKey(cfg.ClerkSecretKey)
	appLog.Info("clerk initialized")
}
