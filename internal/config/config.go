package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting the service reads from the environment.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret    string        `env:"JWT_SECRET,required"`
	CookieSecret string        `env:"COOKIE_SECRET,required"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"10"`

	AuthRateLimitPoints    int           `env:"AUTH_RATE_LIMIT_POINTS" envDefault:"10"`
	AuthRateLimitWindow    time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"15m"`
	AuthRateLimitBlock     time.Duration `env:"AUTH_RATE_LIMIT_BLOCK" envDefault:"10m"`
	GeneralRateLimitPoints int           `env:"GENERAL_RATE_LIMIT_POINTS" envDefault:"300"`
	GeneralRateLimitWindow time.Duration `env:"GENERAL_RATE_LIMIT_WINDOW" envDefault:"5m"`

	UploadsDir string `env:"UPLOADS_DIR" envDefault:"uploads"`

	SentryDSN  string `env:"SENTRY_DSN" envDefault:""`
	CronSecret string `env:"CRON_SECRET" envDefault:""`
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.CookieSecret = strings.TrimSpace(cfg.CookieSecret)
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must not be blank")
	}
	if cfg.CookieSecret == "" {
		return Config{}, fmt.Errorf("COOKIE_SECRET must not be blank")
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}
