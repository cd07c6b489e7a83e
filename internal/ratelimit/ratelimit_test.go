package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_SequentialSpacing(t *testing.T) {
	delay := 50 * time.Millisecond
	l := New(delay)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Do(context.Background(), func() error { return nil }))
	}

	assert.GreaterOrEqual(t, time.Since(start), 9*delay)
}

func TestLimiter_MeasuresFromEndOfCall(t *testing.T) {
	delay := 40 * time.Millisecond
	l := New(delay)

	var ends, starts []time.Time
	for i := 0; i < 3; i++ {
		err := l.Do(context.Background(), func() error {
			starts = append(starts, time.Now())
			time.Sleep(20 * time.Millisecond)
			ends = append(ends, time.Now())
			return nil
		})
		require.NoError(t, err)
	}

	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), delay)
	}
}

func TestLimiter_ConcurrentCallersSerialize(t *testing.T) {
	delay := 30 * time.Millisecond
	l := New(delay)

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, starts, 5)
	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 4*delay)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.Do(ctx, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}
