// Package config loads the sales service configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Lock providers.
const (
	LockNone   = "none"
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Customers ServiceConfig
	Inventory ServiceConfig
	Breaker   BreakerConfig
	Sales     SalesConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string // gin mode: debug, release, test
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// DatabaseConfig holds purchase ledger settings.
type DatabaseConfig struct {
	Driver          string // sqlite, postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	AutoMigrate     bool
}

// ServiceConfig locates a remote service.
type ServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// BreakerConfig tunes the circuit breaker in front of each remote service.
// A zero FailureThreshold disables it.
type BreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// SalesConfig tunes the sale orchestrator.
type SalesConfig struct {
	LockProvider    string
	LockWait        time.Duration
	LockTTL         time.Duration
	ConflictRetries int
	ConflictBackoff time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds event publishing settings. An empty URL disables publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
}

// Load reads configuration from, in priority order: environment variables
// prefixed with SALES_ (after loading .env if present), config.toml in the
// working directory or /app, and built-in defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by the existing docker-compose deployment.
	_ = v.BindEnv("customers.url", "SALES_CUSTOMERS_URL", "CUSTOMERS_SERVICE_URL")
	_ = v.BindEnv("inventory.url", "SALES_INVENTORY_URL", "INVENTORY_SERVICE_URL")
	_ = v.BindEnv("database.dsn", "SALES_DATABASE_DSN", "DATABASE_URL")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			Mode:            v.GetString("server.mode"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Customers: ServiceConfig{
			URL:     v.GetString("customers.url"),
			Timeout: v.GetDuration("customers.timeout"),
		},
		Inventory: ServiceConfig{
			URL:     v.GetString("inventory.url"),
			Timeout: v.GetDuration("inventory.timeout"),
		},
		Breaker: BreakerConfig{
			FailureThreshold: v.GetUint32("breaker.failure_threshold"),
			SuccessThreshold: v.GetUint32("breaker.success_threshold"),
			Timeout:          v.GetDuration("breaker.timeout"),
		},
		Sales: SalesConfig{
			LockProvider:    strings.ToLower(v.GetString("sales.lock.provider")),
			LockWait:        v.GetDuration("sales.lock.wait"),
			LockTTL:         v.GetDuration("sales.lock.ttl"),
			ConflictRetries: v.GetInt("sales.conflict_retries"),
			ConflictBackoff: v.GetDuration("sales.conflict_backoff"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.SaleBudget() + writeTimeoutMargin
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeTimeoutMargin is added to SaleBudget when server.write_timeout is unset.
const writeTimeoutMargin = 5 * time.Second

// SaleBudget is the longest a single sale can take with every remote call
// running into its timeout: lookup, item lock and list on each attempt,
// debit, stock update and refund.
func (c *Config) SaleBudget() time.Duration {
	attempts := 1
	var lockWait, backoff time.Duration
	if c.Sales.LockProvider != LockNone {
		attempts += c.Sales.ConflictRetries
		lockWait = c.Sales.LockWait
		backoff = time.Duration(c.Sales.ConflictRetries) * c.Sales.ConflictBackoff
	}
	perAttempt := lockWait + c.Inventory.Timeout
	return c.Customers.Timeout + time.Duration(attempts)*perAttempt + backoff +
		2*c.Customers.Timeout + c.Inventory.Timeout
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5003)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Zero derives the write timeout from SaleBudget.
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "sales.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("customers.url", "http://customers_service:5001")
	v.SetDefault("customers.timeout", 5*time.Second)
	v.SetDefault("inventory.url", "http://inventory_service:5002")
	v.SetDefault("inventory.timeout", 5*time.Second)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 1)
	v.SetDefault("breaker.timeout", 30*time.Second)

	v.SetDefault("sales.lock.provider", LockNone)
	v.SetDefault("sales.lock.wait", 5*time.Second)
	v.SetDefault("sales.lock.ttl", 30*time.Second)
	v.SetDefault("sales.conflict_retries", 2)
	v.SetDefault("sales.conflict_backoff", 50*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "sales.events")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "sales-service")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.metrics_interval", 60*time.Second)
	v.SetDefault("telemetry.db_trace_enabled", false)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	for name, svc := range map[string]ServiceConfig{"customers": c.Customers, "inventory": c.Inventory} {
		u, err := url.Parse(svc.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s.url must be an absolute URL, got %q", name, svc.URL)
		}
		if svc.Timeout <= 0 {
			return fmt.Errorf("%s.timeout must be positive", name)
		}
	}

	switch c.Sales.LockProvider {
	case LockNone, LockMemory:
	case LockRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required when sales.lock.provider is redis")
		}
	default:
		return fmt.Errorf("sales.lock.provider must be none, memory or redis, got %q", c.Sales.LockProvider)
	}
	if c.Sales.LockProvider != LockNone && c.Sales.LockWait <= 0 {
		return errors.New("sales.lock.wait must be positive")
	}
	if c.Sales.ConflictRetries < 0 {
		return errors.New("sales.conflict_retries must not be negative")
	}
	// The slowest sale must still get its response out.
	if budget := c.SaleBudget(); c.Server.WriteTimeout < budget {
		return fmt.Errorf("server.write_timeout %s is shorter than the longest sale %s", c.Server.WriteTimeout, budget)
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %v", c.Telemetry.SamplingRatio)
	}
	return nil
}
