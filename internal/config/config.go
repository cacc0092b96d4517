package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string
	DatabaseURL string

	ClerkSecretKey     string
	ClerkWebhookSecret string

	RedisURL           string
	RedisChannelPrefix string
	CatalogCacheTTL    time.Duration

	Location *time.Location

	StreakReminderCron string
	PersistMaxAttempts int

	FCMCredentialsFile string

	MetricsUser string
	MetricsPass string
}

// LoadDotenv reads .env files if they exist. Missing files are not an error.
func LoadDotenv() {
	//nolint:errcheck
	godotenv.Load("./.env")
}

// Load reads the process environment. DATABASE_URL and CLERK_SECRET_KEY are
// required unless STORE_DRIVER is "memory".
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnvOrDefault("APP_ENV", "development"),
		Port:               getEnvOrDefault("PORT", "3333"),
		StoreDriver:        strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverPostgres)),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisChannelPrefix: getEnvOrDefault("REDIS_CHANNEL_PREFIX", "notifications"),
		StreakReminderCron: getEnvOrDefault("STREAK_REMINDER_CRON", "0 18 * * *"),
		FCMCredentialsFile: getEnvOrDefault("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPass:        os.Getenv("METRICS_PASS"),
		ClerkWebhookSecret: os.Getenv("CLERK_WEBHOOK_SECRET"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		vs, err := env.EnvsRequired("DATABASE_URL", "CLERK_SECRET_KEY")
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = vs["DATABASE_URL"]
		cfg.ClerkSecretKey = vs["CLERK_SECRET_KEY"]
	case DriverMemory:
		cfg.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	loc, err := time.LoadLocation(getEnvOrDefault("APP_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("failed to load APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	ttl, err := time.ParseDuration(getEnvOrDefault("CATALOG_CACHE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_CACHE_TTL: %w", err)
	}
	cfg.CatalogCacheTTL = ttl

	attempts, err := strconv.Atoi(getEnvOrDefault("PERSIST_MAX_ATTEMPTS", "4"))
	if err != nil || attempts < 1 {
		return nil, fmt.Errorf("invalid PERSIST_MAX_ATTEMPTS %q", os.Getenv("PERSIST_MAX_ATTEMPTS"))
	}
	cfg.PersistMaxAttempts = attempts

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
