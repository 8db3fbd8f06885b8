package cache

import (
	"context"
	"errors"
	"testing"

	"triage_worker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_LocalExclusion(t *testing.T) {
	l := NewRunLock(nil, 0)
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "batch")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "batch")
	require.NoError(t, err)
	assert.False(t, ok)

	// other jobs are independent
	releaseReport, ok, err := l.TryAcquire(ctx, "report")
	require.NoError(t, err)
	assert.True(t, ok)
	releaseReport()

	release()
	release2, ok, err := l.TryAcquire(ctx, "batch")
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRunLock_RunSkipsOverlap(t *testing.T) {
	l := NewRunLock(nil, 0)
	ctx := context.Background()

	var inner error
	ran := 0
	err := l.Run(ctx, "batch", func(ctx context.Context) error {
		ran++
		inner = l.Run(ctx, "batch", func(context.Context) error {
			ran++
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.True(t, apperr.HasCode(inner, apperr.CodeRunInFlight))

	boom := errors.New("boom")
	assert.ErrorIs(t, l.Run(ctx, "batch", func(context.Context) error { return boom }), boom)
	assert.NoError(t, l.Run(ctx, "batch", func(context.Context) error { return nil }))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "triage:lock:report", lockKey("report"))
}
