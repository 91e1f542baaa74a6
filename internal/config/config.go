package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT, default=8080"`
	GinMode   string `env:"GIN_MODE, default=debug"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	DB         DBConfig
	Auth       AuthConfig
	Superadmin SuperadminConfig
	Redis      RedisConfig

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
}

type DBConfig struct {
	Driver   string `env:"DB_DRIVER, default=mysql"`
	Host     string `env:"DB_HOST, default=localhost"`
	Port     string `env:"DB_PORT, default=3306"`
	User     string `env:"DB_USER, default=taskuser"`
	Password string `env:"DB_PASSWORD, default=taskpassword"`
	Name     string `env:"DB_NAME, default=task_tracker"`
	// DSN overrides the individual fields above when set.
	DSN string `env:"DB_DSN"`
}

type AuthConfig struct {
	// JWTSecret signs every session token. Changing it invalidates all outstanding tokens.
	JWTSecret             string        `env:"JWT_SECRET"`
	TokenTTL              time.Duration `env:"TOKEN_TTL, default=720h"`
	CookieSecure          bool          `env:"COOKIE_SECURE, default=false"`
	CookieDomain          string        `env:"COOKIE_DOMAIN"`
	PasswordHasher        string        `env:"PASSWORD_HASHER, default=sha256"`
	AllowRegistrationRole bool          `env:"ALLOW_REGISTRATION_ROLE, default=false"`
}

type SuperadminConfig struct {
	Email    string `env:"SUPERADMIN_EMAIL"`
	Username string `env:"SUPERADMIN_USERNAME"`
	Password string `env:"SUPERADMIN_PASSWORD"`
}

// Enabled reports whether a superadmin account should be seeded at startup.
func (s SuperadminConfig) Enabled() bool {
	return s.Email != "" && s.Password != ""
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom decodes configuration from the given lookuper (used by tests).
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into a clean list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}
