package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

// MaxPageSize is the largest Take the document API accepts.
const MaxPageSize = 50

const (
	DefaultSiegBaseURL     = "https://api.sieg.com"
	DefaultSiegTimeout     = 60 * time.Second
	DefaultSiegMaxAttempts = 3
	DefaultSiegRetryDelay  = 5 * time.Second
	DefaultSiegPageSize    = MaxPageSize
	DefaultSiegUserAgent   = "nfeingest"

	DefaultIngestionDays         = 5
	DefaultIngestionPaceInterval = 2 * time.Second
	DefaultIngestionPacer        = PacerFixed
	DefaultIdentifiersFile       = "cnpj.xlsx"
	DefaultIdentifiersColumn     = "CNPJ"

	DefaultStorageRootDir = "xmls"

	DefaultLedgerDriver     = LedgerSQLite
	DefaultSQLitePath       = "nfe_ledger.db"
	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresDBName   = "nfeingest"
	DefaultPostgresSSLMode  = "disable"
	DefaultPostgresMaxOpen  = 5
	DefaultPostgresMaxIdle  = 2
	DefaultPostgresLifetime = 30 * time.Minute
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisDialTimeout = 5 * time.Second
	DefaultRedisKeyPrefix   = "nfe:ledger:"

	DefaultMinIOBucket = "nfe-xml"

	DefaultKafkaTopic        = "nfe.document.ingested"
	DefaultKafkaRequiredAcks = 1
	DefaultKafkaWriteTimeout = 10 * time.Second

	DefaultOpenSearchIndex = "nfe-documents"

	DefaultOpsAddr            = ":9102"
	DefaultOpsShutdownTimeout = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with its default. Values
// already set by the caller are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Sieg ──────────────────────────────────────────────────────────────────
	if cfg.Sieg.BaseURL == "" {
		cfg.Sieg.BaseURL = DefaultSiegBaseURL
	}
	if cfg.Sieg.Timeout == 0 {
		cfg.Sieg.Timeout = DefaultSiegTimeout
	}
	if cfg.Sieg.MaxAttempts == 0 {
		cfg.Sieg.MaxAttempts = DefaultSiegMaxAttempts
	}
	if cfg.Sieg.RetryDelay == 0 {
		cfg.Sieg.RetryDelay = DefaultSiegRetryDelay
	}
	if cfg.Sieg.PageSize == 0 {
		cfg.Sieg.PageSize = DefaultSiegPageSize
	}
	if cfg.Sieg.UserAgent == "" {
		cfg.Sieg.UserAgent = DefaultSiegUserAgent
	}

	// ── Ingestion ─────────────────────────────────────────────────────────────
	if cfg.Ingestion.Days == 0 {
		cfg.Ingestion.Days = DefaultIngestionDays
	}
	if cfg.Ingestion.PaceInterval == 0 {
		cfg.Ingestion.PaceInterval = DefaultIngestionPaceInterval
	}
	if cfg.Ingestion.Pacer == "" {
		cfg.Ingestion.Pacer = DefaultIngestionPacer
	}
	if cfg.Ingestion.IdentifiersFile == "" {
		cfg.Ingestion.IdentifiersFile = DefaultIdentifiersFile
	}
	if cfg.Ingestion.IdentifiersColumn == "" {
		cfg.Ingestion.IdentifiersColumn = DefaultIdentifiersColumn
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = DefaultStorageRootDir
	}

	// ── Ledger ────────────────────────────────────────────────────────────────
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = DefaultLedgerDriver
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = DefaultSQLitePath
	}
	pg := &cfg.Ledger.Postgres
	if pg.Host == "" {
		pg.Host = DefaultPostgresHost
	}
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.DBName == "" {
		pg.DBName = DefaultPostgresDBName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultPostgresSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultPostgresMaxOpen
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = DefaultPostgresMaxIdle
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = DefaultPostgresLifetime
	}
	rd := &cfg.Ledger.Redis
	if rd.Addr == "" {
		rd.Addr = DefaultRedisAddr
	}
	if rd.DialTimeout == 0 {
		rd.DialTimeout = DefaultRedisDialTimeout
	}
	if rd.KeyPrefix == "" {
		rd.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Sinks ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = DefaultKafkaRequiredAcks
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}

	// ── Ops ───────────────────────────────────────────────────────────────────
	if cfg.Ops.Addr == "" {
		cfg.Ops.Addr = DefaultOpsAddr
	}
	if cfg.Ops.ShutdownTimeout == 0 {
		cfg.Ops.ShutdownTimeout = DefaultOpsShutdownTimeout
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
