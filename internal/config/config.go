// Package config loads all runtime configuration from environment variables.
// A .env file, when present, is loaded by main before Load runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for granthub.
type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Log       LogConfig
	JWT       JWTConfig
	Mail      MailConfig
	Media     MediaConfig
	App       AppConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	OTel      OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "granthub.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MailConfig holds outbound email settings. When APIKey is empty the mailer
// logs messages instead of sending them.
type MailConfig struct {
	APIKey      string //nolint:gosec // intentional: holds SendGrid API key loaded from env
	FromAddress string
	FromName    string
	FrontendURL string // base URL used in verification / reset links
}

// MediaConfig holds file upload settings.
type MediaConfig struct {
	Dir         string // directory for uploaded application documents
	MaxUploadMB int
}

// AppConfig holds application-level settings such as seed credentials.
type AppConfig struct {
	SeedAdminEmail    string
	SeedAdminPassword string
}

// RateLimitConfig controls the login rate limiter.
type RateLimitConfig struct {
	LoginAttempts int
	LoginWindow   time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "granthub.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	var err error
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// Mail
	cfg.Mail.APIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.Mail.FromAddress = envStr("MAIL_FROM_ADDRESS", "noreply@granthub.local")
	cfg.Mail.FromName = envStr("MAIL_FROM_NAME", "Grants Management Team")
	cfg.Mail.FrontendURL = envStr("FRONTEND_URL", "http://localhost:3000")

	// Media
	cfg.Media.Dir = envStr("MEDIA_DIR", "media")
	cfg.Media.MaxUploadMB = envInt("MEDIA_MAX_UPLOAD_MB", 10)

	// App
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@granthub.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	// Rate limit (login attempts per IP per window)
	cfg.RateLimit.LoginAttempts = envInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5)
	cfg.RateLimit.LoginWindow, err = envDuration("RATE_LIMIT_LOGIN_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_LOGIN_WINDOW: %w", err)
	}

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
