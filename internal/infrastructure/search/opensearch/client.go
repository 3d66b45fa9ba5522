// Package opensearch catalogs ingested NF-e documents in an OpenSearch index.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.CodeValidation, "invalid configuration")
	ErrConnectionFailed = errors.New(errors.CodeSearchIndex, "connection failed")
)

// ClientConfig holds the configuration for the OpenSearch client.
type ClientConfig struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	MaxRetries         int
	RetryBackoff       time.Duration
	RequestTimeout     time.Duration
}

// Client manages the OpenSearch client connection.
type Client struct {
	api     *opensearchapi.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient creates a new OpenSearch client and verifies it with a ping.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	backoff := cfg.RetryBackoff
	api, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:     cfg.Addresses,
			Username:      cfg.Username,
			Password:      cfg.Password,
			MaxRetries:    cfg.MaxRetries,
			RetryBackoff:  func(int) time.Duration { return backoff },
			RetryOnStatus: []int{502, 503, 504, 429},
			Transport:     transport,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "failed to create opensearch client")
	}

	c := &Client{api: api, config: cfg, logger: logging.OrDefault(logger).Named("opensearch")}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}
	return c, nil
}

// Ping checks the connection to OpenSearch.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.api.Ping(ctx, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping failed", logging.Err(err))
		return errors.Wrap(err, errors.CodeSearchIndex, "ping failed")
	}
	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.New(errors.CodeSearchIndex, "ping returned error status")
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the result of the last ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// GetClient returns the typed OpenSearch API client.
func (c *Client) GetClient() *opensearchapi.Client {
	return c.api
}

func (c *Client) Close() error {
	c.logger.Info("OpenSearch client closed")
	return nil
}

// ValidateConfig validates the client configuration.
func ValidateConfig(cfg ClientConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.CodeValidation, "max retries must be >= 0")
	}
	if cfg.RequestTimeout < 0 {
		return errors.New(errors.CodeValidation, "request timeout must be >= 0")
	}
	return nil
}
