package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Ledger     LedgerConfig
	PlatformDB PlatformDBConfig
	Cache      CacheConfig
	Kafka      KafkaConfig
	Raffle     RaffleConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"instantin-core-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`

	// PlatformFeeBP is the platform's cut of non-drop orders, in basis points.
	PlatformFeeBP int64 `envconfig:"PLATFORM_FEE_BP" default:"500"`
}

// LedgerConfig holds ledger database settings.
type LedgerConfig struct {
	Type string `envconfig:"LEDGER_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"LEDGER_DB_PATH" default:"./data/ledger.db"`
	// PostgreSQL settings
	Host     string `envconfig:"LEDGER_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"LEDGER_DB_PORT" default:"5432"`
	Name     string `envconfig:"LEDGER_DB_NAME" default:"instantin"`
	User     string `envconfig:"LEDGER_DB_USER" default:"postgres"`
	Password string `envconfig:"LEDGER_DB_PASS" default:""`
	SSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (l *LedgerConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		l.User, l.Password, l.Host, l.Port, l.Name, l.SSLMode)
}

// PlatformDBConfig holds MySQL connection settings for the platform's
// storefront directory (read-only, optional).
type PlatformDBConfig struct {
	Enabled  bool   `envconfig:"PLATFORM_DB_ENABLED" default:"false"`
	Host     string `envconfig:"PLATFORM_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"PLATFORM_DB_PORT" default:"3306"`
	Name     string `envconfig:"PLATFORM_DB_NAME" default:"instantin"`
	User     string `envconfig:"PLATFORM_DB_USER" default:"root"`
	Password string `envconfig:"PLATFORM_DB_PASS" default:""`
}

// DSN returns the MySQL data source name.
func (p *PlatformDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		p.User, p.Password, p.Host, p.Port, p.Name)
}

// CacheConfig holds Redis settings.
type CacheConfig struct {
	Enabled       bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AnalyticsFlushInterval time.Duration `envconfig:"ANALYTICS_FLUSH_INTERVAL" default:"1m"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// KafkaConfig holds event broker settings.
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

// RaffleConfig holds raffle engine settings.
type RaffleConfig struct {
	WinnerCount      int           `envconfig:"RAFFLE_WINNER_COUNT" default:"10"`
	TicketsPerDollar int           `envconfig:"RAFFLE_TICKETS_PER_DOLLAR" default:"1"`
	SchedulerTick    time.Duration `envconfig:"RAFFLE_SCHEDULER_TICK" default:"10m"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
