package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	DBDriver    string `env:"DB_DRIVER"    envDefault:"postgres"  validate:"oneof=postgres sqlite"`
	DatabaseURL string `env:"DATABASE_URL"                        validate:"required_if=DBDriver postgres"`
	SQLitePath  string `env:"SQLITE_PATH"  envDefault:"tokens.db" validate:"required_if=DBDriver sqlite"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Optional. When set, every token route requires an HS256 bearer token.
	JWTSecret string `env:"JWT_SECRET" validate:"omitempty,min=32"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"   envDefault:"50"  validate:"min=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100" validate:"min=1"`

	// Optional outcome stats sink, e.g. redis://localhost:6379/0.
	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`

	NodeID        int64  `env:"NODE_ID"         envDefault:"1" validate:"min=0,max=1023"`
	TokenIDSecret string `env:"TOKEN_ID_SECRET"                validate:"omitempty,min=16"`

	ErrorThreshold int64 `env:"ERROR_THRESHOLD" envDefault:"2" validate:"min=0"`
	MaxTxAttempts  int   `env:"MAX_TX_ATTEMPTS" envDefault:"5" validate:"min=1,max=50"`

	TxnRetention    time.Duration `env:"TXN_RETENTION"    envDefault:"168h"`
	JanitorSchedule string        `env:"JANITOR_SCHEDULE" envDefault:"@every 10m" validate:"required"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.TxnRetention < time.Hour {
		return nil, fmt.Errorf("invalid config: TXN_RETENTION must be at least 1h, got %s", cfg.TxnRetention)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RateLimitEnabled is false when RATE_LIMIT_RPS is 0.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}
