package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys like sync.max_retries to POSQUEUE_SYNC_MAX_RETRIES.
var envKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"`
	Connectivity  ConnectivityConfig  `mapstructure:"connectivity"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// ServerConfig is the local control API that exposes queue status.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	APIToken        string        `mapstructure:"api_token"` // empty leaves the control API open
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout"`
	OpenRetries    uint          `mapstructure:"open_retries"`
	OpenRetryDelay time.Duration `mapstructure:"open_retry_delay"`
}

// DatabaseConfig is only used when store.driver is postgres.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type RemoteConfig struct {
	APIBase                 string        `mapstructure:"api_base"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CSRFHeader              string        `mapstructure:"csrf_header"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// AuthConfig selects where bearer and CSRF tokens are read from. File
// sources are re-read on every submission.
type AuthConfig struct {
	Token         string `mapstructure:"token"`
	TokenFile     string `mapstructure:"token_file"`
	CSRFToken     string `mapstructure:"csrf_token"`
	CSRFTokenFile string `mapstructure:"csrf_token_file"`
}

const (
	LeaseNone  = "none"
	LeaseRedis = "redis"
)

type SyncConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Interval   time.Duration `mapstructure:"interval"`
	Lease      string        `mapstructure:"lease"`
	LeaseKey   string        `mapstructure:"lease_key"`
	LeaseTTL   time.Duration `mapstructure:"lease_ttl"`
}

type CleanupConfig struct {
	OlderThanDays int           `mapstructure:"older_than_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

const (
	ConnectivityNetlink = "netlink"
	ConnectivityManual  = "manual"
)

type ConnectivityConfig struct {
	Source       string `mapstructure:"source"`
	AssumeOnline bool   `mapstructure:"assume_online"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from the given file, or from the default
// search paths when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("POSQUEUE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/posqueue")
	}

	// Config file is optional unless named explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}

	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	case StoreDriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required for the postgres driver"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of sqlite, postgres, memory, got %q", c.Store.Driver))
	}

	if c.Remote.APIBase == "" {
		errs = append(errs, fmt.Errorf("remote.api_base is required"))
	} else if u, err := url.Parse(c.Remote.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote.api_base must be an absolute URL, got %q", c.Remote.APIBase))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("remote.timeout must be positive"))
	}

	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries must be positive"))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("sync.interval cannot be negative"))
	}
	switch c.Sync.Lease {
	case LeaseNone, "":
	case LeaseRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Sync.LeaseTTL <= 0 {
			errs = append(errs, fmt.Errorf("sync.lease_ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("sync.lease must be none or redis, got %q", c.Sync.Lease))
	}

	if c.Cleanup.OlderThanDays < 0 {
		errs = append(errs, fmt.Errorf("cleanup.older_than_days cannot be negative"))
	}

	switch c.Connectivity.Source {
	case ConnectivityNetlink, ConnectivityManual:
	default:
		errs = append(errs, fmt.Errorf("connectivity.source must be netlink or manual, got %q", c.Connectivity.Source))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Store.Driver == StoreDriverMemory {
			errs = append(errs, fmt.Errorf("store.driver memory is not allowed in production"))
		}
		if c.Store.Driver == StoreDriverPostgres && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Store defaults
	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.path", "posqueue.db")
	v.SetDefault("store.busy_timeout", "5s")
	v.SetDefault("store.open_retries", 3)
	v.SetDefault("store.open_retry_delay", "200ms")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "posqueue")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "posqueue")
	v.SetDefault("database.max_connections", 5)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Remote defaults
	v.SetDefault("remote.api_base", "http://localhost:8080/api")
	v.SetDefault("remote.timeout", "15s")
	v.SetDefault("remote.csrf_header", "X-CSRF-Token")
	v.SetDefault("remote.circuit_breaker_threshold", 5)
	v.SetDefault("remote.circuit_breaker_timeout", "30s")

	// Auth defaults; empty values keep the keys visible to AutomaticEnv
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.csrf_token", "")
	v.SetDefault("auth.csrf_token_file", "")

	// Sync defaults
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.lease", LeaseNone)
	v.SetDefault("sync.lease_key", "posqueue:drain")
	v.SetDefault("sync.lease_ttl", "2m")

	// Cleanup defaults
	v.SetDefault("cleanup.older_than_days", 7)
	v.SetDefault("cleanup.interval", "24h")

	// Connectivity defaults
	v.SetDefault("connectivity.source", ConnectivityNetlink)
	v.SetDefault("connectivity.assume_online", false)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "pos-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL returns the URL form used by the migration driver.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
