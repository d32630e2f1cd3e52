package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the htmlshot server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Encryption EncryptionConfig
	Render     RenderConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. When URL is empty the server runs with
// in-process rate-limit and revocation stores.
type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

// EncryptionConfig carries the at-rest key for conversion bodies. An empty
// Key means tagged-plaintext storage; main logs a warning in that case.
type EncryptionConfig struct {
	Key string
}

type RenderConfig struct {
	DefaultWidth  int
	MaxWidth      int
	MaxHeight     int
	SettleDelay   time.Duration
	RenderTimeout time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("HTMLSHOT_PORT", 8080),
			Env:  envString("HTMLSHOT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			TokenTTL:      envDuration("TOKEN_TTL", 7*24*time.Hour),
			AdminEmail:    os.Getenv("ADMIN_EMAIL"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		Encryption: EncryptionConfig{
			Key: os.Getenv("ENCRYPTION_KEY"),
		},
		Render: RenderConfig{
			DefaultWidth:  envInt("RENDER_DEFAULT_WIDTH", 1200),
			MaxWidth:      envInt("RENDER_MAX_WIDTH", 3000),
			MaxHeight:     envInt("RENDER_MAX_HEIGHT", 10000),
			SettleDelay:   envDuration("RENDER_SETTLE_DELAY", 100*time.Millisecond),
			RenderTimeout: envDuration("RENDER_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment reports whether diagnostic detail may be shown to callers.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}

	if c.Render.DefaultWidth <= 0 || c.Render.DefaultWidth > c.Render.MaxWidth {
		return fmt.Errorf("RENDER_DEFAULT_WIDTH must be in (0, %d], got %d",
			c.Render.MaxWidth, c.Render.DefaultWidth)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
