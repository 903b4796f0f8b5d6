package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Game      GameConfig
	Worker    WorkerConfig
	Email     EmailConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

type ServerConfig struct {
	Host        string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port        int    `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"SERVER_ENV" envDefault:"development"` // "development", "production", "test"
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"chess"`
	Password string `env:"DB_PASSWORD" envDefault:"chess"`
	DBName   string `env:"DB_NAME" envDefault:"chessticulate"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret  string `env:"JWT_SECRET"`
	JWTTTLDays int    `env:"JWT_TTL_DAYS" envDefault:"7"`
}

// GameConfig holds the invitation and game lifecycle policy.
type GameConfig struct {
	InvitationTTL        time.Duration `env:"INVITATION_TTL" envDefault:"24h"`
	MoveTimeout          time.Duration `env:"MOVE_TIMEOUT" envDefault:"72h"`
	OneActiveGamePerUser bool          `env:"ONE_ACTIVE_GAME_PER_USER" envDefault:"true"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	CacheSize            int           `env:"GAME_CACHE_SIZE" envDefault:"1024"`
}

// WorkerConfig configures calls to the chess worker service.
type WorkerConfig struct {
	BaseURL        string        `env:"WORKER_BASE_URL" envDefault:"http://localhost:8001"`
	CallTimeout    time.Duration `env:"WORKER_CALL_TIMEOUT" envDefault:"5s"`
	MaxAttempts    int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`
	BackoffInitial time.Duration `env:"WORKER_BACKOFF_INITIAL" envDefault:"200ms"`
	BackoffMax     time.Duration `env:"WORKER_BACKOFF_MAX" envDefault:"2s"`
}

type EmailConfig struct {
	Provider     string `env:"EMAIL_PROVIDER" envDefault:"console"` // "resend", "smtp", "console"
	FromAddress  string `env:"EMAIL_FROM" envDefault:"noreply@chessticulate.com"`
	FromName     string `env:"EMAIL_FROM_NAME" envDefault:"Chessticulate"`
	BaseURL      string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	// SMTP settings (for Mailpit in local dev)
	SMTPHost string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"1025"`
}

type TracingConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"chessticulate"`
}

type RateLimitConfig struct {
	MovesPerMinute int `env:"RATE_LIMIT_MOVES_PER_MINUTE" envDefault:"60"`
	AuthPerMinute  int `env:"RATE_LIMIT_AUTH_PER_MINUTE" envDefault:"10"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	durations := map[string]time.Duration{
		"INVITATION_TTL":         c.Game.InvitationTTL,
		"MOVE_TIMEOUT":           c.Game.MoveTimeout,
		"SWEEP_INTERVAL":         c.Game.SweepInterval,
		"WORKER_CALL_TIMEOUT":    c.Worker.CallTimeout,
		"WORKER_BACKOFF_INITIAL": c.Worker.BackoffInitial,
		"WORKER_BACKOFF_MAX":     c.Worker.BackoffMax,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.MaxAttempts))
	}
	if c.Game.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("GAME_CACHE_SIZE must be at least 1, got %d", c.Game.CacheSize))
	}
	if c.Auth.JWTTTLDays < 1 {
		errs = append(errs, fmt.Errorf("JWT_TTL_DAYS must be at least 1, got %d", c.Auth.JWTTTLDays))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && !c.Server.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if strings.TrimSpace(c.Worker.BaseURL) == "" {
		errs = append(errs, errors.New("WORKER_BASE_URL is required"))
	}

	return errors.Join(errs...)
}
