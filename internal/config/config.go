package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// RedisURL selects the Redis snapshot store. Empty keeps snapshots in memory.
	RedisURL string `env:"REDIS_URL"`
	// DatabaseURL enables the Postgres match archive.
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret string `env:"JWT_SECRET"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Dev      bool   `env:"DEV" envDefault:"false"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	EndedSnapshotTTL   time.Duration `env:"ENDED_SNAPSHOT_TTL" envDefault:"168h"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	WSOriginPatterns []string `env:"WS_ORIGIN_PATTERNS" envSeparator:","`
	WSRateLimit      float64  `env:"WS_RATE_LIMIT" envDefault:"10"`
	WSRateBurst      int      `env:"WS_RATE_BURST" envDefault:"20"`
	OutboxSize       int      `env:"OUTBOX_SIZE" envDefault:"16"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize)
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst < 1 {
		return fmt.Errorf("invalid websocket rate limit %v/%d", c.WSRateLimit, c.WSRateBurst)
	}
	return nil
}
