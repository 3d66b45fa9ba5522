// Package config defines the configuration structures for the NF-e ingestion
// pipeline. No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// SiegConfig holds the document-retrieval API parameters.
type SiegConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	PageSize    int           `mapstructure:"page_size"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// IngestionConfig drives the orchestrator loop.
type IngestionConfig struct {
	Days              int           `mapstructure:"days"`
	PaceInterval      time.Duration `mapstructure:"pace_interval"`
	Pacer             string        `mapstructure:"pacer"` // "fixed" | "token_bucket"
	IdentifiersFile   string        `mapstructure:"identifiers_file"`
	IdentifiersColumn string        `mapstructure:"identifiers_column"`
	IdentifiersSheet  string        `mapstructure:"identifiers_sheet"`
}

// StorageConfig holds the local document tree location.
type StorageConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// SQLiteConfig holds the local ledger database path.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL ledger connection parameters.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis ledger connection parameters.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// LedgerConfig selects and configures the dedup ledger backend.
type LedgerConfig struct {
	Driver   string         `mapstructure:"driver"` // "sqlite" | "postgres" | "redis" | "memory"
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// MinIOConfig holds the optional object-storage mirror parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// KafkaConfig holds the optional ingestion-event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	RequiredAcks int           `mapstructure:"required_acks"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OpenSearchConfig holds the optional document catalog parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	Index              string   `mapstructure:"index"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
}

// OpsConfig holds the operational HTTP endpoint parameters.
type OpsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Sieg       SiegConfig        `mapstructure:"sieg"`
	Ingestion  IngestionConfig   `mapstructure:"ingestion"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Ledger     LedgerConfig      `mapstructure:"ledger"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	Ops        OpsConfig         `mapstructure:"ops"`
	Log        logging.LogConfig `mapstructure:"log"`
}

// Ledger driver names.
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// Pacer names.
const (
	PacerFixed       = "fixed"
	PacerTokenBucket = "token_bucket"
)

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first problem found. The API key is not required here; commands
// that talk to the API check it themselves.
func (c *Config) Validate() error {
	// Sieg
	u, err := url.Parse(c.Sieg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: sieg.base_url %q is not an absolute URL", c.Sieg.BaseURL)
	}
	if c.Sieg.MaxAttempts < 1 {
		return fmt.Errorf("config: sieg.max_attempts must be >= 1, got %d", c.Sieg.MaxAttempts)
	}
	if c.Sieg.RetryDelay < 0 {
		return fmt.Errorf("config: sieg.retry_delay must not be negative")
	}
	if c.Sieg.PageSize < 1 || c.Sieg.PageSize > MaxPageSize {
		return fmt.Errorf("config: sieg.page_size %d is out of range [1, %d]", c.Sieg.PageSize, MaxPageSize)
	}

	// Ingestion
	if c.Ingestion.Days < 1 {
		return fmt.Errorf("config: ingestion.days must be >= 1, got %d", c.Ingestion.Days)
	}
	if c.Ingestion.PaceInterval < 0 {
		return fmt.Errorf("config: ingestion.pace_interval must not be negative")
	}
	switch c.Ingestion.Pacer {
	case PacerFixed, PacerTokenBucket:
	default:
		return fmt.Errorf("config: ingestion.pacer %q is invalid; expected fixed|token_bucket", c.Ingestion.Pacer)
	}

	// Storage
	if c.Storage.RootDir == "" {
		return fmt.Errorf("config: storage.root_dir is required")
	}

	// Ledger
	switch c.Ledger.Driver {
	case LedgerSQLite:
		if c.Ledger.SQLite.Path == "" {
			return fmt.Errorf("config: ledger.sqlite.path is required")
		}
	case LedgerPostgres:
		if c.Ledger.Postgres.Host == "" {
			return fmt.Errorf("config: ledger.postgres.host is required")
		}
		if c.Ledger.Postgres.Port < 1 || c.Ledger.Postgres.Port > 65535 {
			return fmt.Errorf("config: ledger.postgres.port %d is out of range [1, 65535]", c.Ledger.Postgres.Port)
		}
		if c.Ledger.Postgres.DBName == "" {
			return fmt.Errorf("config: ledger.postgres.db_name is required")
		}
	case LedgerRedis:
		if c.Ledger.Redis.Addr == "" {
			return fmt.Errorf("config: ledger.redis.addr is required")
		}
		if c.Ledger.Redis.DB < 0 {
			return fmt.Errorf("config: ledger.redis.db must be >= 0, got %d", c.Ledger.Redis.DB)
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("config: ledger.driver %q is invalid; expected sqlite|postgres|redis|memory", c.Ledger.Driver)
	}

	// Sinks
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}
	if c.OpenSearch.Enabled {
		if len(c.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("config: opensearch.addresses must contain at least one address")
		}
		if c.OpenSearch.Index == "" {
			return fmt.Errorf("config: opensearch.index is required")
		}
	}

	// Ops
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("config: ops.addr is required when ops is enabled")
	}

	// Log
	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
