package ingestion

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/nfe-ingest/internal/config"
	"github.com/turtacn/nfe-ingest/pkg/client"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// Pacer spaces out calls to the document API.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedPacer sleeps for a constant interval on every Wait.
type FixedPacer struct {
	interval time.Duration
	sleep    client.Sleeper
}

// NewFixedPacer returns a FixedPacer sleeping interval. A nil sleep uses
// client.ContextSleep.
func NewFixedPacer(interval time.Duration, sleep client.Sleeper) *FixedPacer {
	if sleep == nil {
		sleep = client.ContextSleep
	}
	return &FixedPacer{interval: interval, sleep: sleep}
}

func (p *FixedPacer) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.interval)
}

// Interval returns the configured sleep.
func (p *FixedPacer) Interval() time.Duration { return p.interval }

// TokenBucketPacer admits one call per interval with a burst of one, so time
// already spent processing counts toward the next slot.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewTokenBucketPacer returns a pacer issuing one token every interval. A
// non-positive interval never blocks.
func NewTokenBucketPacer(interval time.Duration) *TokenBucketPacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucketPacer{limiter: rate.NewLimiter(limit, 1)}
}

func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NewPacer builds the pacer named by kind.
func NewPacer(kind string, interval time.Duration) (Pacer, error) {
	switch kind {
	case "", config.PacerFixed:
		return NewFixedPacer(interval, nil), nil
	case config.PacerTokenBucket:
		return NewTokenBucketPacer(interval), nil
	default:
		return nil, apperrors.Newf(apperrors.CodeConfiguration, "unknown pacer %q", kind)
	}
}
