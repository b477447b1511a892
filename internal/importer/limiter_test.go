package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportLimiterAcquireRelease(t *testing.T) {
	l := NewImportLimiter(2, time.Second)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 2, l.ActiveCount())

	l.Release()
	assert.Equal(t, 1, l.ActiveCount())

	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 2, l.ActiveCount())

	l.Release()
	l.Release()
	assert.Equal(t, 0, l.ActiveCount())
}

func TestImportLimiterRejectsWhenFull(t *testing.T) {
	l := NewImportLimiter(1, 50*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTooManyImports)
}

func TestImportLimiterHonorsContextCancellation(t *testing.T) {
	l := NewImportLimiter(1, time.Minute)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportLimiterDefaults(t *testing.T) {
	l := NewImportLimiter(0, 0)
	assert.Equal(t, DefaultMaxConcurrentImports, cap(l.semaphore))
	assert.Equal(t, DefaultMaxWaitTime, l.maxWait)
}

func TestImportLimiterWaitForDrain(t *testing.T) {
	l := NewImportLimiter(2, time.Second)

	require.NoError(t, l.Acquire(context.Background()))

	go func() {
		time.Sleep(150 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.WaitForDrain(ctx))
	assert.Equal(t, 0, l.ActiveCount())
}

func TestImportLimiterWaitForDrainTimeout(t *testing.T) {
	l := NewImportLimiter(1, time.Second)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}
