package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr        string        `envconfig:"APP_ADDR" default:":8080"`
	Environment string        `envconfig:"APP_ENV" default:"development"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"8h"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SeedAdminName     string `envconfig:"SEED_ADMIN_NAME" default:"Portal Owner"`
	SeedAdminEmail    string `envconfig:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD"`

	EmailFrom    string `envconfig:"EMAIL_FROM" default:"no-reply@example.com"`
	EmailEnabled bool   `envconfig:"EMAIL_ENABLED" default:"false"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPUseTLS   bool   `envconfig:"SMTP_USE_TLS" default:"true"`

	RunMigrations bool `envconfig:"RUN_MIGRATIONS" default:"true"`
	RunSeed       bool `envconfig:"RUN_SEED" default:"true"`

	MaxBodyBytes            int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	RateLimitPerMinute      int   `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	LoginRateLimitPerMinute int   `envconfig:"LOGIN_RATE_LIMIT_PER_MINUTE" default:"10"`
	MetricsEnabled          bool  `envconfig:"METRICS_ENABLED" default:"true"`

	ResetBaseURL string `envconfig:"RESET_BASE_URL" default:"http://localhost:8080"`

	// DataEncryptionKey seals TOTP secrets at rest. Empty stores them as is.
	DataEncryptionKey string `envconfig:"DATA_ENCRYPTION_KEY"`

	// SessionPurgeInterval of zero disables the purge job.
	SessionPurgeInterval time.Duration `envconfig:"SESSION_PURGE_INTERVAL" default:"1h"`
	SessionRetention     time.Duration `envconfig:"SESSION_RETENTION" default:"72h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if len(strings.TrimSpace(c.JWTSecret)) < 32 {
			return fmt.Errorf("JWT_SECRET must be set to at least 32 characters in production")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 || c.LoginRateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and LOGIN_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.SessionPurgeInterval < 0 || c.SessionRetention < 0 {
		return fmt.Errorf("SESSION_PURGE_INTERVAL and SESSION_RETENTION must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}
