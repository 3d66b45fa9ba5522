package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/nfe-ingest/internal/config"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

func TestFixedPacer_SleepsInterval(t *testing.T) {
	var slept []time.Duration
	p := NewFixedPacer(2*time.Second, func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
	assert.Equal(t, 2*time.Second, p.Interval())
}

func TestFixedPacer_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFixedPacer(time.Hour, nil).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucketPacer_ZeroIntervalNeverBlocks(t *testing.T) {
	p := NewTokenBucketPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenBucketPacer_BlocksAfterBurst(t *testing.T) {
	p := NewTokenBucketPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestNewPacer(t *testing.T) {
	p, err := NewPacer(config.PacerFixed, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &FixedPacer{}, p)

	p, err = NewPacer("", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &FixedPacer{}, p)

	p, err = NewPacer(config.PacerTokenBucket, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucketPacer{}, p)

	_, err = NewPacer("leaky", time.Second)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}
