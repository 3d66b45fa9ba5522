// Package client is a Go client for the SIEG document-retrieval API
// (BaixarXmlsV2). It issues one paginated request per call, retries failed
// attempts with a fixed delay and classifies the "no documents" reply as an
// empty page rather than an error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

const Version = "0.1.0"

// Defaults applied by NewClient.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
	DefaultPageSize    = 50
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Observer receives one call per HTTP attempt. outcome is one of the
// Outcome* values or "failure".
type Observer interface {
	ObserveAttempt(outcome string, duration time.Duration)
	ObserveRetry()
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string, time.Duration) {}
func (noopObserver) ObserveRetry()                         {}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client talks to the SIEG API. It is safe for concurrent use and keeps no
// state between calls.
type Client struct {
	baseURL     string
	path        string
	apiKey      string
	httpClient  *http.Client
	userAgent   string
	logger      Logger
	observer    Observer
	sleep       Sleeper
	maxAttempts int
	retryDelay  time.Duration
	pageSize    int
}

// APIError is a non-success HTTP reply.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("sieg: HTTP %d: %s [request_id=%s]", e.StatusCode, body, e.RequestID)
}

// IsNotFound reports a 404 reply.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsServerError reports a 5xx reply.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// NewClient creates a client for baseURL (e.g. https://api.sieg.com).
func NewClient(baseURL string, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, apperrors.Configuration("sieg: base URL is required")
	}
	if apiKey == "" {
		return nil, apperrors.Configuration("sieg: API key is required")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfiguration, "sieg: invalid base URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, apperrors.Configuration("sieg: base URL scheme must be http or https")
	}

	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		path:        "/BaixarXmlsV2",
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		userAgent:   fmt.Sprintf("nfeingest-go/%s", Version),
		logger:      noopLogger{},
		observer:    noopObserver{},
		sleep:       ContextSleep,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		pageSize:    DefaultPageSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// PageSize returns the Take value sent on every request.
func (c *Client) PageSize() int { return c.pageSize }

// endpoint builds the request URL with the API key as a query parameter.
func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	return c.baseURL + c.path + "?" + q.Encode()
}

// rawResponse is one HTTP exchange.
type rawResponse struct {
	status    int
	body      []byte
	requestID string
}

// post performs a single attempt. A transport failure or an unreadable body
// is returned as a CodeTransientNetwork error.
func (c *Client) post(ctx context.Context, payload []byte) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to create request")
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(redactKey(err, c.apiKey), apperrors.CodeTransientNetwork, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTransientNetwork, "failed to read response body")
	}
	return &rawResponse{status: resp.StatusCode, body: body, requestID: requestID}, nil
}

// redactKey keeps the API key out of *url.Error messages, which embed the URL.
func redactKey(err error, key string) error {
	var ue *url.Error
	if apperrors.As(err, &ue) {
		clone := *ue
		clone.URL = strings.ReplaceAll(clone.URL, url.QueryEscape(key), "REDACTED")
		return &clone
	}
	return err
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSerialization, "failed to marshal request body")
	}
	return b, nil
}
