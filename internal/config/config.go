package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "EscrowLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultCurrency         = "usd"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultWebhookTolerance = 5 * time.Minute
	defaultLockTTL          = 30 * time.Second
	defaultTipRateLimit     = 30
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseURL      string
	RedisURL         string
	RabbitMQURL      string
	JWTSecret        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	LockTTL          time.Duration
	Currency         string
	TipRateLimit     int
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
}

// Load reads configuration values from the environment, after an optional .env file,
// and populates a Config instance.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		WebhookSecret:    os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Currency:         strings.ToLower(getEnv("DEFAULT_CURRENCY", defaultCurrency)),
		TipRateLimit:     defaultTipRateLimit,
		WebhookTolerance: defaultWebhookTolerance,
		LockTTL:          defaultLockTTL,
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.WebhookTolerance, err = durationEnv("", "WEBHOOK_TOLERANCE", cfg.WebhookTolerance); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = durationEnv("", "LOCK_TTL", cfg.LockTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("TIP_RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIP_RATE_LIMIT_PER_MIN: %w", err)
		}
		cfg.TipRateLimit = n
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-jwt-secret"
		}
		if cfg.WebhookSecret == "" {
			cfg.WebhookSecret = "whsec_dev"
		}
		return cfg, nil
	}

	required := map[string]string{
		"DATABASE_URL":           cfg.DatabaseURL,
		"REDIS_URL":              cfg.RedisURL,
		"JWT_SECRET":             cfg.JWTSecret,
		"GATEWAY_WEBHOOK_SECRET": cfg.WebhookSecret,
	}
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "GATEWAY_WEBHOOK_SECRET"} {
		if required[key] == "" {
			return Config{}, fmt.Errorf("%s must be set when APP_ENV=%s", key, cfg.AppEnv)
		}
	}
	return cfg, nil
}

// IsDev reports whether in-memory backends and generated secrets are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
