package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// FeedConfig holds subscription feed configuration
type FeedConfig struct {
	URL                  string        `mapstructure:"url"`
	Query                string        `mapstructure:"query"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	AckTimeout           time.Duration `mapstructure:"ack_timeout"`
	ExhaustedRetryDelay  time.Duration `mapstructure:"exhausted_retry_delay"`
}

// BufferConfig holds ingest buffer configuration
type BufferConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// EnrichmentConfig holds metadata enrichment configuration
type EnrichmentConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	QueueSize    int           `mapstructure:"queue_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	Gateways     []string      `mapstructure:"gateways"`
}

// DedupeConfig holds duplicate classification configuration
type DedupeConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// NotifyConfig holds records-update notification configuration
type NotifyConfig struct {
	LatestLimit int `mapstructure:"latest_limit"`
}

// MaintenanceConfig holds maintenance scheduler configuration
type MaintenanceConfig struct {
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	RetentionAge      time.Duration `mapstructure:"retention_age"`
	RunHourUTC        int           `mapstructure:"run_hour_utc"`
	GroupResetAge     time.Duration `mapstructure:"group_reset_age"`
	OversizedCeiling  int           `mapstructure:"oversized_ceiling"`
}

// IngestorConfig holds configuration for the ingestor binary
type IngestorConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Buffer     BufferConfig     `mapstructure:"buffer"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// SweeperConfig holds configuration for the sweeper binary
type SweeperConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// LoadIngestorConfig loads configuration for the ingestor binary
func LoadIngestorConfig(configFile string, envPath string) (*IngestorConfig, error) {
	v := configureViper("ingestor", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "TOKEN_RECORDS")
	v.SetDefault("feed.max_reconnect_attempts", 5)
	v.SetDefault("feed.reconnect_delay", "5s")
	v.SetDefault("feed.ack_timeout", "15s")
	v.SetDefault("feed.exhausted_retry_delay", "1m")
	v.SetDefault("buffer.batch_size", 50)
	v.SetDefault("buffer.flush_interval", "500ms")
	v.SetDefault("enrichment.concurrency", 10)
	v.SetDefault("enrichment.queue_size", 2048)
	v.SetDefault("enrichment.fetch_timeout", "10s")
	v.SetDefault("enrichment.retry_count", 3)
	v.SetDefault("enrichment.retry_delay", "1s")
	v.SetDefault("enrichment.gateways", []string{"https://ipfs.io", "https://gateway.pinata.cloud", "https://cloudflare-ipfs.com"})
	v.SetDefault("dedupe.window", "1h")
	v.SetDefault("notify.latest_limit", 50)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config IngestorConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Feed.URL == "" {
		return nil, errors.New("feed.url is required")
	}

	return &config, nil
}

// LoadSweeperConfig loads configuration for the sweeper binary
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("maintenance.retention_interval", "1h")
	v.SetDefault("maintenance.retention_age", "720h") // 30 days
	v.SetDefault("maintenance.run_hour_utc", 3)
	v.SetDefault("maintenance.group_reset_age", "168h") // 7 days
	v.SetDefault("maintenance.oversized_ceiling", 200)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &cfg, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("MINT_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Feed
		"feed.url",
		"feed.query",
		"feed.max_reconnect_attempts",
		"feed.reconnect_delay",
		"feed.ack_timeout",
		"feed.exhausted_retry_delay",
		// Buffer
		"buffer.batch_size",
		"buffer.flush_interval",
		// Enrichment
		"enrichment.concurrency",
		"enrichment.queue_size",
		"enrichment.fetch_timeout",
		"enrichment.retry_count",
		"enrichment.retry_delay",
		"enrichment.gateways",
		// Dedupe
		"dedupe.window",
		// Notify
		"notify.latest_limit",
		// Maintenance
		"maintenance.retention_interval",
		"maintenance.retention_age",
		"maintenance.run_hour_utc",
		"maintenance.group_reset_age",
		"maintenance.oversized_ceiling",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
