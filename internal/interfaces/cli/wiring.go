package cli

import (
	"context"
	"fmt"

	"github.com/turtacn/nfe-ingest/internal/application/ingestion"
	"github.com/turtacn/nfe-ingest/internal/config"
	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/memory"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/nfe-ingest/internal/infrastructure/database/redis"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/sqlite"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/search/opensearch"
	minioinfra "github.com/turtacn/nfe-ingest/internal/infrastructure/storage/minio"
	"github.com/turtacn/nfe-ingest/internal/interfaces/http/handlers"
	"github.com/turtacn/nfe-ingest/pkg/client"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// closer releases a resource at the end of a command.
type closer func() error

var newMinIOClient = minioinfra.NewMinIOClient

// printfLogger adapts logging.Logger to the SDK's printf-style Logger.
type printfLogger struct {
	l logging.Logger
}

func (p printfLogger) Debugf(format string, args ...interface{}) { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p printfLogger) Infof(format string, args ...interface{})  { p.l.Info(fmt.Sprintf(format, args...)) }
func (p printfLogger) Warnf(format string, args ...interface{})  { p.l.Warn(fmt.Sprintf(format, args...)) }
func (p printfLogger) Errorf(format string, args ...interface{}) { p.l.Error(fmt.Sprintf(format, args...)) }

// newSiegClient builds the document API client from cfg.
func newSiegClient(cfg config.SiegConfig, log logging.Logger, obs client.Observer) (*client.Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Configuration("sieg.api_key is required (NFEINGEST_SIEG_API_KEY)")
	}
	opts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(printfLogger{l: log.Named("sieg")}),
		client.WithMaxAttempts(cfg.MaxAttempts),
		client.WithRetryDelay(cfg.RetryDelay),
		client.WithPageSize(cfg.PageSize),
		client.WithUserAgent(cfg.UserAgent),
	}
	if obs != nil {
		opts = append(opts, client.WithObserver(obs))
	}
	return client.NewClient(cfg.BaseURL, cfg.APIKey, opts...)
}

// openLedger connects the ledger named by cfg.Driver. The returned checker
// reports its connectivity on /readyz.
func openLedger(ctx context.Context, cfg config.LedgerConfig, log logging.Logger) (invoice.Ledger, handlers.HealthChecker, error) {
	switch cfg.Driver {
	case config.LedgerMemory:
		l := memory.NewLedger()
		return l, handlers.CheckFunc{Component: "ledger", Fn: func(context.Context) error { return nil }}, nil

	case config.LedgerSQLite, "":
		l, err := sqlite.Open(cfg.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return l, handlers.CheckFunc{Component: "ledger", Fn: l.Ping}, nil

	case config.LedgerPostgres:
		conn, err := openPostgres(cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.AutoMigrate {
			status, err := conn.Migrate()
			if err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
			log.Info("Ledger schema migrated", logging.Int64("version", int64(status.Version)))
		}
		return repositories.NewPostgresLedger(conn, log), handlers.CheckFunc{Component: "ledger", Fn: conn.HealthCheck}, nil

	case config.LedgerRedis:
		rc, err := redisinfra.NewClient(&redisinfra.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		l := redisinfra.NewLedger(rc, log, redisinfra.WithKeyPrefix(cfg.Redis.KeyPrefix))
		return l, handlers.CheckFunc{Component: "ledger", Fn: rc.Ping}, nil

	default:
		return nil, nil, apperrors.Newf(apperrors.CodeConfiguration, "unknown ledger driver %q", cfg.Driver)
	}
}

func openPostgres(cfg config.PostgresConfig, log logging.Logger) (*postgres.Connection, error) {
	return postgres.NewConnection(postgres.PostgresConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Database:        cfg.DBName,
		Username:        cfg.User,
		Password:        cfg.Password,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, log)
}

// sinkSet is the set of optional post-ingest sinks enabled in config.
type sinkSet struct {
	sinks    []ingestion.Sink
	checkers []handlers.HealthChecker
	closers  []closer
}

func (s *sinkSet) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openSinks connects every enabled sink. On error the sinks opened so far are
// closed.
func openSinks(ctx context.Context, cfg *config.Config, log logging.Logger) (*sinkSet, error) {
	set := &sinkSet{}

	if cfg.MinIO.Enabled {
		mc, err := newMinIOClient(&minioinfra.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKey,
			SecretAccessKey: cfg.MinIO.SecretKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Region:          cfg.MinIO.Region,
			Bucket:          cfg.MinIO.Bucket,
			Prefix:          cfg.MinIO.Prefix,
		}, log)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			_ = mc.Close()
			_ = set.Close()
			return nil, err
		}
		set.sinks = append(set.sinks, minioinfra.NewMirror(mc, log))
		set.closers = append(set.closers, mc.Close)
		set.checkers = append(set.checkers, handlers.CheckFunc{Component: "minio", Fn: func(ctx context.Context) error {
			_, err := mc.HealthCheck(ctx)
			return err
		}})
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, log)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		pub := kafka.NewPublisher(producer, cfg.Kafka.Topic, log)
		set.sinks = append(set.sinks, pub)
		set.closers = append(set.closers, pub.Close)
	}

	if cfg.OpenSearch.Enabled {
		oc, err := opensearch.NewClient(opensearch.ClientConfig{
			Addresses:          cfg.OpenSearch.Addresses,
			Username:           cfg.OpenSearch.Username,
			Password:           cfg.OpenSearch.Password,
			InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
		}, log)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		catalog := opensearch.NewCatalog(oc, cfg.OpenSearch.Index, log)
		if err := catalog.EnsureIndex(ctx); err != nil {
			_ = oc.Close()
			_ = set.Close()
			return nil, err
		}
		set.sinks = append(set.sinks, catalog)
		set.closers = append(set.closers, oc.Close)
		set.checkers = append(set.checkers, handlers.CheckFunc{Component: "opensearch", Fn: oc.Ping})
	}

	return set, nil
}

// newMetrics builds the process metrics registry.
func newMetrics(log logging.Logger) (prometheus.MetricsCollector, *prometheus.AppMetrics, error) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "nfeingest",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, log)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeInternal, "metrics registry")
	}
	return collector, prometheus.NewAppMetrics(collector), nil
}
