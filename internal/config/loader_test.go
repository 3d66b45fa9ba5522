package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
sieg:
  api_key: "secret-key"
  retry_delay: 1s
ingestion:
  days: 3
  pacer: token_bucket
  identifiers_file: "clientes.xlsx"
storage:
  root_dir: "/data/xmls"
ledger:
  driver: postgres
  postgres:
    host: "db.internal"
    user: "nfe"
    db_name: "ledger"
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
log:
  level: debug
  format: console
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Sieg.APIKey)
	assert.Equal(t, time.Second, cfg.Sieg.RetryDelay)
	assert.Equal(t, 3, cfg.Ingestion.Days)
	assert.Equal(t, PacerTokenBucket, cfg.Ingestion.Pacer)
	assert.Equal(t, "/data/xmls", cfg.Storage.RootDir)
	assert.Equal(t, LedgerPostgres, cfg.Ledger.Driver)
	assert.Equal(t, "db.internal", cfg.Ledger.Postgres.Host)
	assert.Equal(t, 5432, cfg.Ledger.Postgres.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "console", cfg.Log.Format)
	// defaults survive a partial file
	assert.Equal(t, 3, cfg.Sieg.MaxAttempts)
	assert.Equal(t, 50, cfg.Sieg.PageSize)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "sieg: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "ledger:\n  driver: cassandra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NFEINGEST_SIEG_API_KEY", "from-env")
	t.Setenv("NFEINGEST_LEDGER_REDIS_ADDR", "redis:6380")
	t.Setenv("NFEINGEST_INGESTION_DAYS", "2")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Sieg.APIKey)
	assert.Equal(t, "redis:6380", cfg.Ledger.Redis.Addr)
	assert.Equal(t, 2, cfg.Ingestion.Days)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("NFEINGEST_LEDGER_DRIVER", "memory")
	t.Setenv("NFEINGEST_STORAGE_ROOT_DIR", "/tmp/nfe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Driver)
	assert.Equal(t, "/tmp/nfe", cfg.Storage.RootDir)
	assert.Equal(t, DefaultSiegBaseURL, cfg.Sieg.BaseURL)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "nope.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}
