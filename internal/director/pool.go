package director

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// SessionMetrics tracks pool counters across the director's lifetime.
type SessionMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when a session is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("session pool is shut down")

// ErrSessionInFlight is returned when a blueprint still has a running session.
// Cron fires that overlap a slow session are skipped, never queued.
var ErrSessionInFlight = errors.New("session already in flight")

// sessionPool bounds concurrent sessions with a semaphore and deduplicates
// them by blueprint name.
type sessionPool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics SessionMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func newSessionPool(size int) *sessionPool {
	if size <= 0 {
		size = 1
	}
	return &sessionPool{
		sem:      make(chan struct{}, size),
		done:     make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Submit runs one named session on the pool. It refuses a name that is still
// running, blocks for a free slot (respecting ctx and shutdown), and runs fn
// on its own goroutine.
func (p *sessionPool) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	if !p.tryAcquireName(name) {
		return ErrSessionInFlight
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.releaseName(name)
		return ctx.Err()
	case <-p.done:
		p.releaseName(name)
		return ErrPoolShutdown
	}

	// Re-check closed after acquiring the slot in case Shutdown raced; the
	// wg.Add must happen under the lock so Shutdown's Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		p.releaseName(name)
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.Panics, 1)
				atomic.AddInt64(&p.metrics.Failed, 1)
			}
			atomic.AddInt64(&p.metrics.Active, -1)
			<-p.sem
			p.releaseName(name)
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			atomic.AddInt64(&p.metrics.Failed, 1)
		} else {
			atomic.AddInt64(&p.metrics.Completed, 1)
		}
	}()

	return nil
}

func (p *sessionPool) tryAcquireName(name string) bool {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	if _, ok := p.inflight[name]; ok {
		return false
	}
	p.inflight[name] = struct{}{}
	return true
}

func (p *sessionPool) releaseName(name string) {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	delete(p.inflight, name)
}

// Wait blocks until every submitted session has finished.
func (p *sessionPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting sessions and waits for the active ones.
func (p *sessionPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *sessionPool) Metrics() SessionMetrics {
	return SessionMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}
