package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logger      LoggerConfig      `yaml:"logger"`
	Auth        AuthConfig        `yaml:"auth"`
	Reservation ReservationConfig `yaml:"reservation"`
	Orders      OrdersConfig      `yaml:"orders"`
	Notify      NotifyConfig      `yaml:"notify"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
	Menu        MenuConfig        `yaml:"menu"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigin      string        `yaml:"corsOrigin"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"name"`
	MaxConnections  int    `yaml:"maxConnections"`
	MinConnections  int    `yaml:"minConnections"`
	MaxConnLifetime int    `yaml:"maxConnLifetime"` // seconds
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

// ReservationConfig holds reservation settings.
type ReservationConfig struct {
	TimeZone string `yaml:"timeZone"`
}

// Location resolves the restaurant's time zone.
func (c *ReservationConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

// OrdersConfig holds the order admission settings.
type OrdersConfig struct {
	LockTimeout    time.Duration `yaml:"lockTimeout"`
	StaleLockAfter time.Duration `yaml:"staleLockAfter"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
	SimilarWindow  time.Duration `yaml:"similarWindow"`
	BusyRetryAfter time.Duration `yaml:"busyRetryAfter"`
}

// NotifyConfig holds the notification transport configuration.
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RedisConfig holds the Redis connection used for rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateRule is a token budget per window.
type RateRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimitConfig holds per-route request budgets.
type RateLimitConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Prefix       string   `yaml:"prefix"`
	Reservations RateRule `yaml:"reservations"`
	Availability RateRule `yaml:"availability"`
	Orders       RateRule `yaml:"orders"`
}

// MenuConfig holds the menu catalogue source.
type MenuConfig struct {
	Enabled   bool   `yaml:"enabled"`
	File      string `yaml:"file"`
	S3Enabled bool   `yaml:"s3Enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigin:      "*",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Database:        "bistro",
			MaxConnections:  25,
			MinConnections:  5,
			MaxConnLifetime: 300,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Issuer:   "bistro",
			TokenTTL: 24 * time.Hour,
		},
		Reservation: ReservationConfig{
			TimeZone: "UTC",
		},
		Orders: OrdersConfig{
			LockTimeout:    10 * time.Second,
			StaleLockAfter: 60 * time.Second,
			SweepInterval:  2 * time.Minute,
			SimilarWindow:  30 * time.Second,
			BusyRetryAfter: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Exchange: "bistro.notifications",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Prefix:       "rl",
			Reservations: RateRule{Limit: 3, Window: 5 * time.Minute},
			Availability: RateRule{Limit: 20, Window: time.Minute},
			Orders:       RateRule{Limit: 5, Window: 15 * time.Minute},
		},
		Menu: MenuConfig{
			File:   "data/menu/menu.gz",
			Region: "us-east-1",
			Prefix: "menu/",
		},
	}
}

// Load loads configuration from an optional .env file, an optional YAML
// file named by CONFIG_FILE, and environment variables, in increasing order
// of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file at path onto cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Port = getEnvAsInt("SERVER_PORT", s.Port)
	s.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", s.WriteTimeout)
	s.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CORSOrigin = getEnv("CORS_ORIGIN", s.CORSOrigin)

	d := &cfg.Database
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnvAsInt("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Database = getEnv("DB_NAME", d.Database)
	d.MaxConnections = getEnvAsInt("DB_MAX_CONNECTIONS", d.MaxConnections)
	d.MinConnections = getEnvAsInt("DB_MIN_CONNECTIONS", d.MinConnections)
	d.MaxConnLifetime = getEnvAsInt("DB_MAX_CONN_LIFETIME", d.MaxConnLifetime)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Format = getEnv("LOG_FORMAT", cfg.Logger.Format)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.TokenTTL = getEnvAsDuration("JWT_TOKEN_TTL", cfg.Auth.TokenTTL)

	cfg.Reservation.TimeZone = getEnv("RESERVATION_TIMEZONE", cfg.Reservation.TimeZone)

	o := &cfg.Orders
	o.LockTimeout = getEnvAsDuration("ORDER_LOCK_TIMEOUT", o.LockTimeout)
	o.StaleLockAfter = getEnvAsDuration("ORDER_STALE_LOCK_AFTER", o.StaleLockAfter)
	o.SweepInterval = getEnvAsDuration("ORDER_LOCK_SWEEP_INTERVAL", o.SweepInterval)
	o.SimilarWindow = getEnvAsDuration("ORDER_SIMILAR_WINDOW", o.SimilarWindow)
	o.BusyRetryAfter = getEnvAsDuration("ORDER_BUSY_RETRY_AFTER", o.BusyRetryAfter)

	cfg.Notify.Enabled = getEnvAsBool("NOTIFY_ENABLED", cfg.Notify.Enabled)
	cfg.Notify.URL = getEnv("AMQP_URL", cfg.Notify.URL)
	cfg.Notify.Exchange = getEnv("NOTIFY_EXCHANGE", cfg.Notify.Exchange)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	r := &cfg.RateLimit
	r.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", r.Enabled)
	r.Prefix = getEnv("RATE_LIMIT_PREFIX", r.Prefix)

	m := &cfg.Menu
	m.Enabled = getEnvAsBool("MENU_ENABLED", m.Enabled)
	m.File = getEnv("MENU_FILE", m.File)
	m.S3Enabled = getEnvAsBool("S3_ENABLED", m.S3Enabled)
	m.Bucket = getEnv("S3_BUCKET", m.Bucket)
	m.Region = getEnv("S3_REGION", m.Region)
	m.Prefix = getEnv("S3_PREFIX", m.Prefix)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if _, err := c.Reservation.Location(); err != nil {
		return fmt.Errorf("invalid reservation time zone %q: %w", c.Reservation.TimeZone, err)
	}

	durations := map[string]time.Duration{
		"order lock timeout":         c.Orders.LockTimeout,
		"order stale lock threshold": c.Orders.StaleLockAfter,
		"order lock sweep interval":  c.Orders.SweepInterval,
		"order similar window":       c.Orders.SimilarWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("AMQP URL is required when notifications are enabled")
	}

	if c.RateLimit.Enabled {
		for name, rule := range map[string]RateRule{
			"reservations": c.RateLimit.Reservations,
			"availability": c.RateLimit.Availability,
			"orders":       c.RateLimit.Orders,
		} {
			if rule.Limit < 1 || rule.Window <= 0 {
				return fmt.Errorf("invalid %s rate limit", name)
			}
		}
	}

	if c.Menu.Enabled && c.Menu.S3Enabled {
		if c.Menu.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.Menu.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
