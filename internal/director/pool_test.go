package director

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSessions(t *testing.T) {
	p := newSessionPool(4)
	ctx := context.Background()

	var ran int64
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("bp-%d", i)
		err := p.Submit(ctx, name, func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
		require.NoError(t, err)
	}
	p.Wait()

	assert.Equal(t, int64(8), atomic.LoadInt64(&ran))
	m := p.Metrics()
	assert.Equal(t, int64(8), m.Completed)
	assert.Equal(t, int64(0), m.Failed)
	assert.Equal(t, int64(0), m.Active)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := newSessionPool(2)
	ctx := context.Background()

	var active, peak int64
	var mu sync.Mutex
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("bp-%d", i)
		err := p.Submit(ctx, name, func(ctx context.Context) error {
			n := atomic.AddInt64(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		})
		require.NoError(t, err)
	}
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
	assert.Greater(t, peak, int64(0))
}

func TestPoolDeduplicatesNames(t *testing.T) {
	p := newSessionPool(4)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	err := p.Submit(ctx, "patrol", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	// Same name is refused while in flight, other names are fine.
	err = p.Submit(ctx, "patrol", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSessionInFlight)
	err = p.Submit(ctx, "boot", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	close(release)
	p.Wait()

	// After draining the name is free again.
	err = p.Submit(ctx, "patrol", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	p.Wait()
	assert.Equal(t, int64(3), p.Metrics().Completed)
}

func TestPoolCountsFailures(t *testing.T) {
	p := newSessionPool(2)
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, "bad", func(ctx context.Context) error {
		return fmt.Errorf("boom")
	}))
	require.NoError(t, p.Submit(ctx, "good", func(ctx context.Context) error {
		return nil
	}))
	p.Wait()

	m := p.Metrics()
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.Completed)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := newSessionPool(1)
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, "volatile", func(ctx context.Context) error {
		panic("session blew up")
	}))
	p.Wait()

	m := p.Metrics()
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(1), m.Failed)

	// The slot and the name are released; the pool keeps working.
	require.NoError(t, p.Submit(ctx, "volatile", func(ctx context.Context) error { return nil }))
	p.Wait()
	assert.Equal(t, int64(1), p.Metrics().Completed)
}

func TestPoolShutdownRejectsNewSessions(t *testing.T) {
	p := newSessionPool(1)
	p.Shutdown()

	err := p.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestPoolSubmitRespectsContext(t *testing.T) {
	p := newSessionPool(1)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(ctx, "holder", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	// The only slot is taken; a cancelled context aborts the wait.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(cancelled, "waiter", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	p.Wait()
}
