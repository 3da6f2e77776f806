// Package config loads and validates application configuration from YAML files
// with environment-variable expansion and DRI_* overrides. It provides typed
// structs for every subsystem (Server, Postgres, Kafka, Redis, Indexer,
// Search, Indexes, etc.).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Recurrence strategies.
const (
	RecurrenceTimeDelta = "timedelta"
	RecurrenceICal      = "ical"
)

// DST behaviours.
const (
	DSTAdjust = "adjust"
	DSTKeep   = "keep"
	DSTAuto   = "auto"
)

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Indexes  []IndexConfig  `yaml:"indexes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. Persistence is
// skipped entirely when Enabled is false.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	MaxRetries      int           `yaml:"maxRetries"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIndex   string `yaml:"documentIndex"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls where snapshots live and how often they are written
// and picked up again.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	KeepSnapshots  int           `yaml:"keepSnapshots"`
}

// SearchConfig bounds query requests.
type SearchConfig struct {
	MaxKeys int           `yaml:"maxKeys"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// IndexConfig describes one date recurring index. It is fixed at index
// creation.
type IndexConfig struct {
	Name           string `yaml:"name"`
	RecurrenceType string `yaml:"recurrenceType"`
	DST            string `yaml:"dst"`
	StartAttr      string `yaml:"startAttr"`
	RecurrenceAttr string `yaml:"recurrenceAttr"`
	UntilAttr      string `yaml:"untilAttr"`
	DefaultZone    string `yaml:"defaultZone"`
}

// Location resolves DefaultZone, falling back to UTC when unset.
func (c IndexConfig) Location() (*time.Location, error) {
	if c.DefaultZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.DefaultZone)
	if err != nil {
		return nil, fmt.Errorf("loading zone %q: %w", c.DefaultZone, err)
	}
	return loc, nil
}

// Validate checks the index definition.
func (c IndexConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Match(indexNamePattern)),
		validation.Field(&c.RecurrenceType, validation.Required, validation.In(RecurrenceTimeDelta, RecurrenceICal)),
		validation.Field(&c.DST, validation.Required, validation.In(DSTAdjust, DSTKeep, DSTAuto)),
		validation.Field(&c.StartAttr, validation.Required),
		validation.Field(&c.DefaultZone, validation.By(func(value interface{}) error {
			_, err := c.Location()
			return err
		})),
	)
}

// Validate checks every section and the index list.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Postgres),
		validation.Field(&c.Indexer),
		validation.Field(&c.Indexes, validation.Required),
	)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Indexes))
	for i, idx := range c.Indexes {
		if err := idx.Validate(); err != nil {
			return fmt.Errorf("indexes[%d]: %w", i, err)
		}
		if _, dup := seen[idx.Name]; dup {
			return fmt.Errorf("indexes[%d]: duplicate index name %q", i, idx.Name)
		}
		seen[idx.Name] = struct{}{}
	}
	return nil
}

// Validate checks the HTTP server settings.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// Validate checks the connection settings when persistence is enabled.
func (p PostgresConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Host, validation.When(p.Enabled, validation.Required)),
		validation.Field(&p.Database, validation.When(p.Enabled, validation.Required)),
		validation.Field(&p.Port, validation.When(p.Enabled, validation.Min(1), validation.Max(65535))),
	)
}

// Validate checks the snapshot settings.
func (i IndexerConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.DataDir, validation.Required),
		validation.Field(&i.KeepSnapshots, validation.Min(1)),
	)
}

// Load reads a YAML config file (if provided), expands ${VAR} references,
// applies environment-variable overrides and validates the result. Missing
// values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultIndex is the index used when the config file declares none.
func DefaultIndex() IndexConfig {
	return IndexConfig{
		Name:           "start",
		RecurrenceType: RecurrenceICal,
		DST:            DSTAuto,
		StartAttr:      "start",
		RecurrenceAttr: "recurrence",
		UntilAttr:      "until",
		DefaultZone:    "UTC",
	}
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "recurringindex",
			User:            "recurringindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MaxRetries:      5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "recurringindex-group",
			Topics: KafkaTopics{
				DocumentIndex:   "document-index",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/indexes",
			FlushInterval:  30 * time.Second,
			ReloadInterval: 15 * time.Second,
			KeepSnapshots:  2,
		},
		Search: SearchConfig{
			MaxKeys: 1024,
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Indexes: []IndexConfig{DefaultIndex()},
	}
}

// applyEnvOverrides reads DRI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DRI_POSTGRES_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = enabled
		}
	}
	if v := os.Getenv("DRI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DRI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DRI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DRI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DRI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DRI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DRI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DRI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DRI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DRI_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("DRI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DRI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
