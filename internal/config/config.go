// Package config loads and validates application configuration from a
// YAML file, environment variables, and defaults, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonesrussell/goingest/internal/logger"
)

// QueueBackend selects a job queue implementation. The set is closed;
// the backend is resolved exactly once at configuration load.
type QueueBackend string

const (
	// QueueBackendFilesystem uses rename-based claims on a local directory.
	QueueBackendFilesystem QueueBackend = "filesystem"

	// QueueBackendRedis uses Redis Streams consumer groups.
	QueueBackendRedis QueueBackend = "redis"
)

// IsValid reports whether the backend is one of the known values.
func (b QueueBackend) IsValid() bool {
	return b == QueueBackendFilesystem || b == QueueBackendRedis
}

// Config is the root configuration for all commands.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logger      logger.Config     `mapstructure:"logger"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Index       IndexConfig       `mapstructure:"index"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig holds ledger (PostgreSQL) connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// QueueConfig holds job queue settings shared by both backends.
type QueueConfig struct {
	Backend           QueueBackend  `mapstructure:"backend"`
	Dir               string        `mapstructure:"dir"`
	RedisAddr         string        `mapstructure:"redis_addr"`
	RedisPassword     string        `mapstructure:"redis_password"`
	RedisDB           int           `mapstructure:"redis_db"`
	StreamPrefix      string        `mapstructure:"stream_prefix"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	RecoveryInterval  time.Duration `mapstructure:"recovery_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// IndexConfig holds vector index (Elasticsearch) settings.
type IndexConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	APIKey    string   `mapstructure:"api_key"`
	IndexName string   `mapstructure:"index_name"`
}

// ObjectStoreConfig holds content object store (MinIO/S3) settings.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// WorkerConfig holds ingestion worker settings.
type WorkerConfig struct {
	PollSleep         time.Duration `mapstructure:"poll_sleep"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
}

// SchedulerConfig holds reconciliation loop settings.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from the given file (optional), the
// environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	// Config file is optional; defaults and environment variables cover
	// everything it would provide.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the process cannot run
// without.
func (c *Config) Validate() error {
	if !c.Queue.Backend.IsValid() {
		return fmt.Errorf("unknown queue backend: %q", c.Queue.Backend)
	}
	if c.Queue.Backend == QueueBackendFilesystem && c.Queue.Dir == "" {
		return errors.New("queue.dir must be set for the filesystem backend")
	}
	if c.Queue.Backend == QueueBackendRedis && c.Queue.RedisAddr == "" {
		return errors.New("queue.redis_addr must be set for the redis backend")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return errors.New("queue.visibility_timeout must be positive")
	}
	if c.Queue.MaxRetries <= 0 {
		return errors.New("queue.max_retries must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host must be set")
	}
	if len(c.Index.Addresses) == 0 {
		return errors.New("index.addresses must be set")
	}
	if c.ObjectStore.Endpoint == "" {
		return errors.New("object_store.endpoint must be set")
	}
	if c.ObjectStore.Bucket == "" {
		return errors.New("object_store.bucket must be set")
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	return nil
}

// setDefaults sets production-safe default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app", map[string]any{
		"name":        "goingest",
		"version":     "1.0.0",
		"environment": "production",
		"debug":       false,
	})

	v.SetDefault("logger", map[string]any{
		"level":       "info",
		"development": false,
		"encoding":    "json",
	})

	v.SetDefault("database", map[string]any{
		"host":    "127.0.0.1",
		"port":    "5432",
		"user":    "goingest",
		"dbname":  "goingest",
		"sslmode": "disable",
	})

	v.SetDefault("queue", map[string]any{
		"backend":            "filesystem",
		"dir":                "queue",
		"redis_addr":         "127.0.0.1:6379",
		"redis_db":           0,
		"stream_prefix":      "goingest",
		"visibility_timeout": "5m",
		"recovery_interval":  "2m",
		"max_retries":        3,
	})

	v.SetDefault("index", map[string]any{
		"addresses":  []string{"http://127.0.0.1:9200"},
		"index_name": "goingest-entities",
	})

	v.SetDefault("object_store", map[string]any{
		"endpoint": "127.0.0.1:9000",
		"bucket":   "goingest-content",
		"use_ssl":  false,
	})

	v.SetDefault("worker", map[string]any{
		"poll_sleep":         "5s",
		"heartbeat_interval": "1m",
		"fetch_timeout":      "30s",
	})

	v.SetDefault("scheduler", map[string]any{
		"interval": "5m",
	})
}

// bindEnvVars maps well-known environment variables onto config keys.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string][]string{
		"app.environment":         {"APP_ENV"},
		"app.debug":               {"APP_DEBUG"},
		"logger.level":            {"LOG_LEVEL"},
		"logger.encoding":         {"LOG_FORMAT"},
		"database.host":           {"DB_HOST"},
		"database.port":           {"DB_PORT"},
		"database.user":           {"DB_USER"},
		"database.password":       {"DB_PASSWORD"},
		"database.dbname":         {"DB_NAME"},
		"queue.backend":           {"QUEUE_BACKEND"},
		"queue.dir":               {"QUEUE_DIR"},
		"queue.redis_addr":        {"QUEUE_REDIS_ADDR", "REDIS_ADDR"},
		"queue.redis_password":    {"REDIS_PASSWORD"},
		"index.addresses":         {"ELASTICSEARCH_HOSTS", "ELASTICSEARCH_ADDRESSES"},
		"index.password":          {"ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"},
		"index.api_key":           {"ELASTICSEARCH_API_KEY"},
		"index.index_name":        {"ELASTICSEARCH_INDEX_NAME"},
		"object_store.endpoint":   {"MINIO_ENDPOINT"},
		"object_store.access_key": {"MINIO_ACCESS_KEY"},
		"object_store.secret_key": {"MINIO_SECRET_KEY"},
		"object_store.bucket":     {"MINIO_BUCKET"},
	}

	for key, envs := range bindings {
		// BindEnv only errors on an empty key, which cannot happen here.
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}
