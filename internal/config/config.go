package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Telnyx TelnyxConfig
	Calls  CallsConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
	// LogFile enables a rotating file sink next to stdout.
	LogFile string `env:"LOG_FILE"`
	// Storage selects postgres (with Redis) or memory for local runs.
	Storage         string        `env:"APP_STORAGE" envDefault:"postgres"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`

	MaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	// AutoMigrate applies the embedded schema on boot.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL"`
	// StreamTokenTTL is the lifetime of tokens carried in live feed URLs.
	StreamTokenTTL  time.Duration `env:"JWT_STREAM_TTL"`
}

// TelnyxConfig may be left empty; the server still boots and call starts fail with
// NOT_CONFIGURED.
type TelnyxConfig struct {
	APIKey       string        `env:"TELNYX_API_KEY"`
	ConnectionID string        `env:"TELNYX_CONNECTION_ID"`
	BaseURL      string        `env:"TELNYX_BASE_URL" envDefault:"https://api.telnyx.com/v2"`
	PublicKey    string        `env:"TELNYX_PUBLIC_KEY"`
	HTTPTimeout  time.Duration `env:"TELNYX_HTTP_TIMEOUT" envDefault:"15s"`
	// WebhookTolerance bounds clock skew on signed webhooks.
	WebhookTolerance time.Duration `env:"TELNYX_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

type CallsConfig struct {
	BridgeDialTimeout time.Duration `env:"CALLS_BRIDGE_DIAL_TIMEOUT" envDefault:"45s"`
	StartLockTTL      time.Duration `env:"CALLS_START_LOCK_TTL" envDefault:"15s"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	c.App.Env = strings.TrimSpace(c.App.Env)
	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	switch c.App.Storage {
	case "postgres":
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("APP_STORAGE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("APP_STORAGE must be postgres or memory, got %q", c.App.Storage))
	}

	if c.UsesPostgres() {
		errs = append(errs, c.validateDB()...)
		errs = append(errs, c.validateRedis()...)
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Telnyx.APIKey != "" && c.Telnyx.PublicKey == "" {
			errs = append(errs, errors.New("TELNYX_PUBLIC_KEY is required in production when TELNYX_API_KEY is set"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.StreamTokenTTL <= 0 {
		c.Auth.StreamTokenTTL = time.Minute
	}
	if c.Auth.StreamTokenTTL > c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_STREAM_TTL must not exceed JWT_ACCESS_TTL"))
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if (c.Telnyx.APIKey == "") != (c.Telnyx.ConnectionID == "") {
		errs = append(errs, errors.New("TELNYX_API_KEY and TELNYX_CONNECTION_ID must be set together"))
	}
	if c.Telnyx.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TELNYX_HTTP_TIMEOUT must be positive, got %s", c.Telnyx.HTTPTimeout))
	}
	if c.Calls.BridgeDialTimeout < 5*time.Second || c.Calls.BridgeDialTimeout > 120*time.Second {
		errs = append(errs, fmt.Errorf("CALLS_BRIDGE_DIAL_TIMEOUT must be between 5s and 120s, got %s", c.Calls.BridgeDialTimeout))
	}
	if c.Calls.StartLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("CALLS_START_LOCK_TTL must be positive, got %s", c.Calls.StartLockTTL))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateRedis() []error {
	var errs []error
	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) UsesPostgres() bool {
	return c.App.Storage == "postgres"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
