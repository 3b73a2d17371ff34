package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                    int      `env:"PORT" envDefault:"8080"`
	DatabaseURL             string   `env:"DATABASE_URL,required"`
	RedisURL                string   `env:"REDIS_URL"`
	AdminPasswordHash       string   `env:"ADMIN_PASSWORD_HASH"`
	AdminSessionSecret      string   `env:"ADMIN_SESSION_SECRET"`
	AllowedOrigins          []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel                string   `env:"LOG_LEVEL" envDefault:"info"`
	HistoryLimit            int      `env:"HISTORY_LIMIT" envDefault:"50"`
	MaxMessageLength        int      `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`
	SessionIdleTimeoutHours int      `env:"SESSION_IDLE_TIMEOUT_HOURS" envDefault:"24"`
	FrameRatePerSec         float64  `env:"FRAME_RATE_PER_SEC" envDefault:"5"`
	FrameBurst              int      `env:"FRAME_BURST" envDefault:"10"`
	VisitorConnectsPerMin   int      `env:"VISITOR_CONNECTS_PER_MIN" envDefault:"30"`
	AdminAPIRequestsPerMin  int      `env:"ADMIN_API_REQUESTS_PER_MIN" envDefault:"120"`
}

// SessionIdleTimeout is zero when idle sessions are never auto-closed.
func (c *Config) SessionIdleTimeout() time.Duration {
	if c.SessionIdleTimeoutHours <= 0 {
		return 0
	}
	return time.Duration(c.SessionIdleTimeoutHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}

	if isProduction {
		if err := validateSecret("ADMIN_SESSION_SECRET", c.AdminSessionSecret); err != nil {
			return err
		}

		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket connections from any origin are accepted")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: fan-out is limited to a single instance")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
